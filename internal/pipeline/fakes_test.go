package pipeline

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"llamactl/internal/cancel"
	"llamactl/internal/download"
	"llamactl/internal/notify"
	"llamactl/internal/platform"
	"llamactl/internal/runner"
)

type execCall struct {
	Cmd string
	Dir string
}

// fakeExec mimics the runner: it refuses to run once the token is stopped
// or while busy is set, and lets tests script results, output lines and
// blocking commands.
type fakeExec struct {
	token *cancel.Token

	mu      sync.Mutex
	calls   []execCall
	fail    []string
	lines   map[string][]string
	block   string
	busy    bool
	started chan struct{}
	killed  chan struct{}
	effects func(cmd string)
}

func newFakeExec(token *cancel.Token) *fakeExec {
	return &fakeExec{token: token, lines: map[string][]string{}, killed: make(chan struct{}), started: make(chan struct{}, 1)}
}

func (f *fakeExec) Run(ctx context.Context, cmd, dir string, onLine func(string)) (bool, error) {
	if f.token.Stopped() {
		return false, nil
	}
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return false, runner.ErrBusy
	}
	f.calls = append(f.calls, execCall{Cmd: cmd, Dir: dir})
	fail := false
	for _, s := range f.fail {
		if strings.Contains(cmd, s) {
			fail = true
		}
	}
	var out []string
	for k, v := range f.lines {
		if strings.Contains(cmd, k) {
			out = v
		}
	}
	block := f.block != "" && strings.Contains(cmd, f.block)
	effects := f.effects
	f.mu.Unlock()

	if block {
		f.started <- struct{}{}
		select {
		case <-f.killed:
		case <-ctx.Done():
		}
		return false, nil
	}
	for _, l := range out {
		if onLine != nil {
			onLine(l)
		}
	}
	if fail {
		return false, nil
	}
	if effects != nil {
		effects(cmd)
	}
	return true, nil
}

func (f *fakeExec) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.killed:
	default:
		close(f.killed)
	}
}

func (f *fakeExec) Calls() []execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]execCall(nil), f.calls...)
}

func (f *fakeExec) Commands() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.Cmd)
	}
	return out
}

func (f *fakeExec) ran(sub string) int {
	n := 0
	for _, c := range f.Commands() {
		if strings.Contains(c, sub) {
			n++
		}
	}
	return n
}

// fakeDownloads writes a small file named after the URL's last segment.
type fakeDownloads struct {
	mu      sync.Mutex
	urls    []string
	fail    map[string]bool
	content map[string][]byte
	block   string
	started chan struct{}
}

func newFakeDownloads() *fakeDownloads {
	return &fakeDownloads{fail: map[string]bool{}, content: map[string][]byte{}, started: make(chan struct{}, 1)}
}

func (f *fakeDownloads) New(url, dir string) (Downloader, error) {
	return &fakeTask{parent: f, url: url, dir: dir, cancelled: make(chan struct{})}, nil
}

func (f *fakeDownloads) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type fakeTask struct {
	parent    *fakeDownloads
	url, dir  string
	once      sync.Once
	cancelled chan struct{}
}

func (t *fakeTask) Download(ctx context.Context, onProgress download.ProgressFunc) error {
	f := t.parent
	f.mu.Lock()
	f.urls = append(f.urls, t.url)
	fail := f.fail[t.url]
	body, ok := f.content[t.url]
	block := f.block != "" && strings.HasSuffix(t.url, f.block)
	f.mu.Unlock()

	if block {
		f.started <- struct{}{}
		<-t.cancelled
		return download.ErrAborted
	}
	if fail {
		return os.ErrPermission
	}
	if onProgress != nil {
		onProgress(50)
		onProgress(100)
	}
	if !ok {
		body = []byte("data")
	}
	return os.WriteFile(filepath.Join(t.dir, path.Base(t.url)), body, 0o644)
}

func (t *fakeTask) Cancel() { t.once.Do(func() { close(t.cancelled) }) }

type fakeSyncer struct {
	calls int
	err   error
}

func (s *fakeSyncer) Sync(ctx context.Context, url, dir string, hooks SyncHooks) error {
	s.calls++
	hooks.Start(cloneTask)
	hooks.Progress(cloneTask, 100)
	return s.err
}

type harness struct {
	p     *Pipeline
	home  string
	exec  *fakeExec
	dl    *fakeDownloads
	sync  *fakeSyncer
	sink  *notify.MemorySink
	token *cancel.Token
	strat platform.Strategy
}

// newHarness builds a pipeline on a darwin-style strategy whose convert and
// quantize commands create their output files like the real tools would.
func newHarness(t *testing.T, goos string) *harness {
	t.Helper()
	home := t.TempDir()
	strat := platform.For(goos, home)
	if goos == "linux" {
		strat.Prerequisites = []string{"apt-get install x -y", "dnf install x -y"}
	}
	h := &harness{home: home, token: cancel.New(), sink: notify.NewMemorySink(), dl: newFakeDownloads(), sync: &fakeSyncer{}, strat: strat}
	h.exec = newFakeExec(h.token)
	h.exec.effects = func(cmd string) { h.simulate(t, cmd) }
	p, err := New(Options{
		Home:             home,
		SourceURL:        "https://example.com/llama.cpp.git",
		WeightsURL:       "https://weights.example.com/LLaMA/",
		PythonArchiveURL: "https://example.com/python/cpython-install_only.tar.gz",
		Strategy:         &strat,
		Executor:         h.exec,
		NewDownload:      h.dl.New,
		Syncer:           h.sync,
		Sink:             h.sink,
		Token:            h.token,
	})
	require.NoError(t, err)
	h.p = p
	return h
}

func (h *harness) simulate(t *testing.T, cmd string) {
	touch := func(p string) {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	switch {
	case strings.Contains(cmd, "-m venv"):
		touch(h.strat.VenvPython)
	case strings.Contains(cmd, "convert-pth-to-ggml.py"):
		// models/<NAME>/ follows the script name.
		fields := strings.Fields(cmd)
		for i, f := range fields {
			if strings.HasSuffix(f, "convert-pth-to-ggml.py") {
				dir := filepath.Join(h.home, filepath.FromSlash(fields[i+1]))
				touch(filepath.Join(dir, "ggml-model-f16.bin"))
			}
		}
	case strings.HasPrefix(cmd, "./quantize "):
		fields := strings.Fields(cmd)
		touch(fields[2])
	}
}
