// Package runner executes shell command lines inside a pseudo-terminal
// session and streams their output line by line.
package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"llamactl/internal/cancel"
	"llamactl/internal/queryfilter"
)

// drainTimeout bounds how long output is read after the shell exited while
// some background process still holds the terminal open.
const drainTimeout = 2 * time.Second

// Handle describes the active process.
type Handle struct {
	Command string
	Dir     string
	PID     int
	Alive   bool
}

// Runner spawns one interactive shell per Exec call. At most one process is
// active at a time; a concurrent Exec is refused.
type Runner struct {
	shell      string
	defaultDir string
	env        []string
	token      *cancel.Token
	output     func(string)
	log        zerolog.Logger

	mu     sync.Mutex
	active *session
	handle Handle
}

// Option configures a Runner.
type Option func(*Runner)

// WithShell overrides the shell binary (default $SHELL, then /bin/sh; %COMSPEC% on Windows).
func WithShell(path string) Option {
	return func(r *Runner) {
		if path != "" {
			r.shell = path
		}
	}
}

// WithOutput sets the shared output path used when Exec gets no line callback.
func WithOutput(fn func(string)) Option { return func(r *Runner) { r.output = fn } }

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(r *Runner) { r.log = l } }

// WithEnv appends environment entries (KEY=VALUE) to the inherited environment.
func WithEnv(kv ...string) Option { return func(r *Runner) { r.env = append(r.env, kv...) } }

// New returns a Runner whose commands default to dir. A nil token never stops.
func New(dir string, token *cancel.Token, opts ...Option) *Runner {
	r := &Runner{
		shell:      defaultShell(),
		defaultDir: dir,
		token:      token,
		output:     func(string) {},
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ErrBusy is returned by Run when another process is active.
var ErrBusy = errors.New("runner: another process is active")

// Exec runs command in dir (the default directory when empty) and reports
// whether it exited with status 0. Output lines go to onLine, or to the
// shared output path when onLine is nil. It returns false without spawning
// anything when the token is already stopped. Every path returns.
func (r *Runner) Exec(ctx context.Context, command, dir string, onLine func(string)) bool {
	ok, _ := r.Run(ctx, command, dir, onLine)
	return ok
}

// Run is Exec with the reason a command never started: ErrBusy when another
// process is active, or the spawn error. A stopped token yields false, nil.
func (r *Runner) Run(ctx context.Context, command, dir string, onLine func(string)) (bool, error) {
	if r.token.Stopped() {
		return false, nil
	}
	if _, busy := r.Active(); busy {
		r.log.Error().Err(ErrBusy).Str("cmd", command).Msg("exec refused")
		return false, ErrBusy
	}
	if dir == "" {
		dir = r.defaultDir
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	r.log.Info().Str("cmd", command).Str("dir", dir).Msg("exec")

	emit := onLine
	if emit == nil {
		emit = r.output
	}

	sess, err := startSession(r.shell, dir, append(os.Environ(), r.env...))
	if err != nil {
		r.log.Error().Err(err).Str("cmd", command).Msg("spawn failed")
		observeExit("spawn_error")
		return false, err
	}
	if !r.claim(sess, command, dir) {
		r.log.Error().Err(ErrBusy).Str("cmd", command).Msg("exec refused")
		sess.kill()
		_ = sess.cmd.Wait()
		sess.close()
		return false, ErrBusy
	}
	defer r.release()

	// stop() may have landed between the first check and claim.
	if r.token.Stopped() {
		sess.kill()
	}

	splitter := queryfilter.NewLineSplitter(emit)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_, _ = io.Copy(splitter, sess.out)
	}()

	if _, err := io.WriteString(sess.in, command+lineEnd); err != nil {
		r.log.Error().Err(err).Msg("write command")
		sess.kill()
	}
	_, _ = io.WriteString(sess.in, "exit"+lineEnd)

	stopWatch := context.AfterFunc(ctx, sess.kill)
	defer stopWatch()

	waitErr := sess.cmd.Wait()
	select {
	case <-readDone:
	case <-time.After(drainTimeout):
	}
	sess.close()
	<-readDone
	splitter.Flush()

	code := exitCode(waitErr)
	r.log.Info().Int("exit_code", code).Str("cmd", command).Msg("process exited")
	if code == 0 {
		observeExit("success")
		return true, nil
	}
	observeExit("failure")
	return false, nil
}

// Stop kills the active process, if any. Exec then returns false.
func (r *Runner) Stop() {
	r.mu.Lock()
	sess := r.active
	r.mu.Unlock()
	if sess != nil {
		r.log.Info().Int("pid", sess.pid()).Msg("killing active process")
		sess.kill()
	}
}

// Active returns the handle of the running process.
func (r *Runner) Active() (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return Handle{}, false
	}
	return r.handle, true
}

func (r *Runner) claim(s *session, command, dir string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return false
	}
	r.active = s
	r.handle = Handle{Command: command, Dir: dir, PID: s.pid(), Alive: true}
	return true
}

func (r *Runner) release() {
	r.mu.Lock()
	r.active = nil
	r.handle = Handle{}
	r.mu.Unlock()
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
