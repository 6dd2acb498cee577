//go:build windows

package runner

import (
	"os"
	"os/exec"
)

const lineEnd = "\r\n"

func defaultShell() string {
	if s := os.Getenv("COMSPEC"); s != "" {
		return s
	}
	return "cmd.exe"
}

func startSession(shell, dir string, env []string) (*session, error) {
	cmd := exec.Command(shell)
	cmd.Dir = dir
	cmd.Env = env
	return startPipes(cmd)
}

func setProcessGroup(*exec.Cmd) {}

func killTree(p *os.Process) { _ = p.Kill() }
