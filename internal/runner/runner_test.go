//go:build !windows

package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llamactl/internal/cancel"
)

type lines struct {
	mu sync.Mutex
	l  []string
}

func (c *lines) add(s string) {
	c.mu.Lock()
	c.l = append(c.l, s)
	c.mu.Unlock()
}

func (c *lines) hasSuffix(suffix string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.l {
		if strings.HasSuffix(strings.TrimSpace(s), suffix) {
			return true
		}
	}
	return false
}

func newShellRunner(t *testing.T, tok *cancel.Token) *Runner {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	return New(t.TempDir(), tok, WithShell("/bin/sh"))
}

func TestExec_SuccessStreamsLines(t *testing.T) {
	r := newShellRunner(t, cancel.New())
	var got lines
	// The echoed input line does not end in 42, only the computed output does.
	ok := r.Exec(context.Background(), "echo $((6*7))", "", got.add)
	require.True(t, ok)
	assert.True(t, got.hasSuffix("42"), "lines: %q", got.l)
	_, active := r.Active()
	assert.False(t, active)
}

func TestExec_NonZeroExitIsFailure(t *testing.T) {
	r := newShellRunner(t, cancel.New())
	assert.False(t, r.Exec(context.Background(), "exit 3", "", nil))
}

func TestExec_UsesSharedOutputWhenNoCallback(t *testing.T) {
	var got lines
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	r := New(t.TempDir(), nil, WithShell("/bin/sh"), WithOutput(got.add))
	require.True(t, r.Exec(context.Background(), "echo $((40+2))", "", nil))
	assert.True(t, got.hasSuffix("42"))
}

func TestExec_RunsInGivenDirectory(t *testing.T) {
	r := newShellRunner(t, cancel.New())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/marker.txt", nil, 0o644))
	assert.True(t, r.Exec(context.Background(), "test -f marker.txt", dir, nil))
	assert.False(t, r.Exec(context.Background(), "test -f marker.txt", "", nil))
}

func TestExec_StoppedTokenSpawnsNothing(t *testing.T) {
	tok := cancel.New()
	tok.Stop()
	r := newShellRunner(t, tok)
	called := false
	assert.False(t, r.Exec(context.Background(), "echo hi", "", func(string) { called = true }))
	assert.False(t, called)
}

func waitActive(t *testing.T, r *Runner) Handle {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h, ok := r.Active(); ok {
			return h
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("process never became active")
	return Handle{}
}

func TestStop_KillsActiveProcess(t *testing.T) {
	r := newShellRunner(t, cancel.New())
	done := make(chan bool, 1)
	go func() { done <- r.Exec(context.Background(), "sleep 30", "", nil) }()

	h := waitActive(t, r)
	assert.Equal(t, "sleep 30", h.Command)
	assert.True(t, h.Alive)
	assert.NotZero(t, h.PID)

	r.Stop()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(10 * time.Second):
		t.Fatal("Exec did not return after Stop")
	}
}

func TestExec_ContextCancelKills(t *testing.T) {
	r := newShellRunner(t, cancel.New())
	ctx, cancelFn := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancelFn()
	start := time.Now()
	assert.False(t, r.Exec(ctx, "sleep 30", "", nil))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExec_RefusesConcurrentProcess(t *testing.T) {
	r := newShellRunner(t, cancel.New())
	done := make(chan bool, 1)
	go func() { done <- r.Exec(context.Background(), "sleep 30", "", nil) }()
	waitActive(t, r)

	assert.False(t, r.Exec(context.Background(), "echo second", "", nil))

	r.Stop()
	<-done
}

func TestRun_ReportsBusy(t *testing.T) {
	r := newShellRunner(t, cancel.New())
	done := make(chan bool, 1)
	go func() { done <- r.Exec(context.Background(), "sleep 30", "", nil) }()
	waitActive(t, r)

	var got []string
	ok, err := r.Run(context.Background(), "echo second", "", func(l string) { got = append(got, l) })
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, got)

	h, active := r.Active()
	require.True(t, active)
	assert.Equal(t, "sleep 30", h.Command)

	r.Stop()
	<-done
}

func TestRun_StoppedTokenIsNotAnError(t *testing.T) {
	tok := cancel.New()
	tok.Stop()
	r := newShellRunner(t, tok)
	ok, err := r.Run(context.Background(), "echo hi", "", nil)
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestRun_SpawnFailure(t *testing.T) {
	r := New(t.TempDir(), cancel.New(), WithShell(filepath.Join(t.TempDir(), "no-such-shell")))
	ok, err := r.Run(context.Background(), "echo hi", "", nil)
	assert.False(t, ok)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrBusy)
}
