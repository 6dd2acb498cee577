package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/rs/zerolog"

	"llamactl/internal/queryfilter"
)

// SyncHooks receive source sync progress.
type SyncHooks struct {
	Start    func(task string)
	Progress func(task string, percent float64)
	Message  func(line string)
}

// SourceSyncer brings the source tree at dir up to date with url.
type SourceSyncer interface {
	Sync(ctx context.Context, url, dir string, hooks SyncHooks) error
}

// GitSyncer clones with go-git and falls back to a pull when dir already
// holds a repository.
type GitSyncer struct {
	Log zerolog.Logger
}

const (
	cloneTask = "Cloning repository"
	pullTask  = "Pulling repository changes"
)

func (g GitSyncer) Sync(ctx context.Context, url, dir string, hooks SyncHooks) error {
	hooks = hooks.withDefaults()

	hooks.Start(cloneTask)
	pw := newSidebandWriter(cloneTask, hooks)
	_, cloneErr := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: url, Progress: pw})
	pw.Flush()
	if cloneErr == nil {
		g.Log.Info().Str("url", url).Str("dir", dir).Msg("cloned source")
		return nil
	}
	g.Log.Debug().Err(cloneErr).Str("dir", dir).Msg("clone failed, trying pull")

	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("clone: %w (open existing: %v)", cloneErr, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	hooks.Start(pullTask)
	pw = newSidebandWriter(cloneTask, hooks)
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: "origin", Progress: pw})
	pw.Flush()
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		g.Log.Info().Str("dir", dir).Msg("source already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	g.Log.Info().Str("dir", dir).Msg("pulled source")
	return nil
}

func (h SyncHooks) withDefaults() SyncHooks {
	if h.Start == nil {
		h.Start = func(string) {}
	}
	if h.Progress == nil {
		h.Progress = func(string, float64) {}
	}
	if h.Message == nil {
		h.Message = func(string) {}
	}
	return h
}

var sidebandPercent = regexp.MustCompile(`(\d+)% \(`)

// newSidebandWriter turns remote sideband output ("Receiving objects:  45% (9/20)\r")
// into progress updates. Lines without a percentage, and the final ", done."
// line of each phase, are forwarded as messages.
func newSidebandWriter(task string, hooks SyncHooks) *queryfilter.LineSplitter {
	return queryfilter.NewLineSplitter(func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		m := sidebandPercent.FindStringSubmatch(line)
		if m == nil {
			hooks.Message(line)
			return
		}
		if pct, err := strconv.Atoi(m[1]); err == nil {
			hooks.Progress(task, float64(pct))
		}
		if strings.HasSuffix(line, "done.") {
			hooks.Message(line)
		}
	})
}
