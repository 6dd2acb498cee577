package runner

import (
	"io"
	"os"
	"os/exec"
	"sync"
)

// session is one spawned shell with its input and merged output streams.
type session struct {
	cmd  *exec.Cmd
	in   io.Writer
	out  io.Reader
	fds  []io.Closer
	once sync.Once
}

func (s *session) pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

func (s *session) kill() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	killTree(s.cmd.Process)
}

func (s *session) close() {
	s.once.Do(func() {
		for _, c := range s.fds {
			_ = c.Close()
		}
	})
}

// startPipes is the fallback used where no pseudo-terminal is available.
func startPipes(cmd *exec.Cmd) (*session, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	setProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, err
	}
	// The child owns the write end now.
	_ = pw.Close()
	return &session{cmd: cmd, in: stdin, out: pr, fds: []io.Closer{stdin, pr}}, nil
}
