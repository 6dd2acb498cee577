//go:build !windows

package runner

import (
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

const lineEnd = "\n"

func defaultShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	return "/bin/sh"
}

// startSession spawns shell attached to a new pseudo-terminal sized like a
// wide xterm. If the pty cannot be allocated it falls back to plain pipes.
func startSession(shell, dir string, env []string) (*session, error) {
	cmd := exec.Command(shell)
	cmd.Dir = dir
	cmd.Env = append(env, "TERM=xterm-color")
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 200, Rows: 30})
	if err == nil {
		return &session{cmd: cmd, in: ptmx, out: ptmx, fds: []io.Closer{ptmx}}, nil
	}
	cmd = exec.Command(shell)
	cmd.Dir = dir
	cmd.Env = env
	return startPipes(cmd)
}

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killTree kills the shell's whole process group, then the shell itself.
func killTree(p *os.Process) {
	_ = syscall.Kill(-p.Pid, syscall.SIGKILL)
	_ = p.Kill()
}
