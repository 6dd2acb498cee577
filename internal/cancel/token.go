// Package cancel provides the cooperative stop flag shared by the install
// pipeline, the process runner and downloads.
package cancel

import "sync/atomic"

// Token is a process-wide style stop flag held by one pipeline instance.
// Readers check Stopped before starting a step, download or spawn. A nil
// *Token is never stopped and ignores Stop and Reset.
type Token struct {
	stopped atomic.Bool
}

// New returns a token in the running (not stopped) state.
func New() *Token { return &Token{} }

// Stop marks the token as stopped. It is idempotent.
func (t *Token) Stop() {
	if t != nil {
		t.stopped.Store(true)
	}
}

// Reset clears the flag. Only a fresh install run calls this.
func (t *Token) Reset() {
	if t != nil {
		t.stopped.Store(false)
	}
}

// Stopped reports whether Stop was called since the last Reset.
func (t *Token) Stopped() bool {
	if t == nil {
		return false
	}
	return t.stopped.Load()
}

// ShouldContinue is the inverse of Stopped.
func (t *Token) ShouldContinue() bool { return !t.Stopped() }
