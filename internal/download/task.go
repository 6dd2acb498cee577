// Package download fetches a single remote file into a directory with
// progress reporting and cancellation.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
)

// State of a Task.
type State int

const (
	Pending State = iota
	Running
	Done
	Failed
	Aborted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrAborted is returned by Download after Cancel.
var ErrAborted = errors.New("download: aborted")

// ProgressFunc receives 0..100.
type ProgressFunc func(percent float64)

// Task is one file transfer. It is not reusable once Download returned.
type Task struct {
	URL            string
	DestinationDir string
	Filename       string

	client    *http.Client
	userAgent string

	mu      sync.Mutex
	state   State
	percent float64
	cancel  context.CancelFunc
	aborted bool
}

// Option configures a Task.
type Option func(*Task)

func WithClient(c *http.Client) Option { return func(t *Task) { t.client = c } }

func WithUserAgent(ua string) Option { return func(t *Task) { t.userAgent = ua } }

// New builds a task for rawURL. The filename is the last path segment of
// the URL.
func New(rawURL, destDir string, opts ...Option) (*Task, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return nil, fmt.Errorf("url %q has no file name", rawURL)
	}
	t := &Task{
		URL:            rawURL,
		DestinationDir: destDir,
		Filename:       name,
		client:         http.DefaultClient,
		userAgent:      "llamactl",
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Path is the final destination path.
func (t *Task) Path() string { return filepath.Join(t.DestinationDir, t.Filename) }

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}

// Cancel aborts an in-flight transfer. Calling it before Download makes
// Download return ErrAborted immediately.
func (t *Task) Cancel() {
	t.mu.Lock()
	t.aborted = true
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Download transfers the file into DestinationDir through a temporary
// ".download" file that is renamed into place on success. onProgress may be
// nil. Progress is only reported when the server sends a Content-Length.
func (t *Task) Download(ctx context.Context, onProgress ProgressFunc) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	if t.aborted {
		t.state = Aborted
		t.mu.Unlock()
		return ErrAborted
	}
	t.cancel = cancel
	t.state = Running
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.cancel = nil
		switch {
		case err == nil:
			t.state = Done
		case t.aborted:
			t.state = Aborted
			err = ErrAborted
		default:
			t.state = Failed
		}
	}()

	if err := os.MkdirAll(t.DestinationDir, 0o755); err != nil {
		return fmt.Errorf("prepare destination directory: %w", err)
	}
	dest := t.Path()
	tmpPath := dest + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	pw := &progressWriter{total: resp.ContentLength, report: func(p float64) {
		t.mu.Lock()
		t.percent = p
		t.mu.Unlock()
		if onProgress != nil {
			onProgress(p)
		}
	}}
	_, copyErr := io.Copy(io.MultiWriter(file, pw), resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write destination file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}
	pw.finish()
	return nil
}

// progressWriter converts byte counts into whole-percent callbacks.
type progressWriter struct {
	total   int64
	written int64
	last    int
	report  func(float64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	bytesTotal.Add(float64(len(b)))
	if p.total <= 0 {
		return len(b), nil
	}
	pct := int(p.written * 100 / p.total)
	if pct > 100 {
		pct = 100
	}
	if pct != p.last {
		p.last = pct
		p.report(float64(pct))
	}
	return len(b), nil
}

func (p *progressWriter) finish() {
	if p.total > 0 && p.last < 100 {
		p.last = 100
		p.report(100)
	}
}
