package notify

import "github.com/rs/zerolog"

// LogSink mirrors events into a zerolog logger. Progress ticks go to debug.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Publish(e Event) {
	switch e.Kind {
	case KindProgress:
		s.Log.Debug().Str("task", e.Task).Float64("percent", e.Percent).Msg("progress")
	case KindStartProgress:
		s.Log.Info().Str("task", e.Task).Msg("start")
	case KindOutput:
		ev := s.Log.Debug()
		if e.Level == LevelError {
			ev = s.Log.Error()
		}
		ev.Str("line", e.Line).Msg("output")
	case KindFinished:
		s.Log.Info().Str("run_id", e.RunID).Msg("install finished")
	case KindQueryFinished:
		s.Log.Debug().Str("run_id", e.RunID).Msg("query finished")
	}
}
