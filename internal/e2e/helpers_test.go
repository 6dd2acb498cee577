package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"llamactl/internal/common/logging"
	"llamactl/internal/httpapi"
	"llamactl/internal/notify"
	"llamactl/internal/pipeline"
	"llamactl/internal/platform"
)

// writeScript writes an executable /bin/sh script.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script %s: %v", p, err)
	}
	return p
}

// seedSourceRepo creates a local git repository standing in for the
// llama.cpp sources.
func seedSourceRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("git init: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Makefile"), []byte("all:\n"), 0o644); err != nil {
		t.Fatalf("write Makefile: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if _, err := wt.Add("Makefile"); err != nil {
		t.Fatalf("git add: %v", err)
	}
	sig := &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()}
	if _, err := wt.Commit("initial", &git.CommitOptions{Author: sig}); err != nil {
		t.Fatalf("git commit: %v", err)
	}
	return dir
}

// weightsServer serves a few bytes for every requested weight file.
func weightsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "7")
		_, _ = w.Write([]byte("weights"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeToolchain replaces the python, build and inference tools with shell
// scripts that produce the same artifacts.
func fakeToolchain(t *testing.T, home string) platform.Strategy {
	t.Helper()
	tools := t.TempDir()
	s := platform.For("linux", home)
	s.Prerequisites = []string{"true"}
	s.PythonCandidates = []string{"true"}
	s.VenvPip = writeScript(t, tools, "pip", "exit 0\n")
	// convert-pth-to-ggml.py models/<M>/ 1, run from home
	s.VenvPython = writeScript(t, tools, "python", "echo converting \"$2\"\n: > \"$2ggml-model-f16.bin\"\n")
	s.Build = []platform.Command{{Label: "Building", Line: "true", Required: true}}
	s.QuantizeDir = tools
	writeScript(t, tools, "quantize", "cp \"$1\" \"$2\"\n")
	s.MainBinary = writeScript(t, tools, "main", `echo "main: seed = 1"
echo "llama_model_load: loading model"
echo "sampling parameters: temp = 0.800000"
echo "The capital of France is Paris."
echo "mem per token = 14434244 bytes"
echo "main: total time = 1.00 ms"
`)
	return s
}

type stack struct {
	srv  *httptest.Server
	p    *pipeline.Pipeline
	home string
}

func newStack(t *testing.T) *stack {
	t.Helper()
	home := filepath.Join(t.TempDir(), "llama.cpp")
	strategy := fakeToolchain(t, home)
	hub := notify.NewHub(1024)
	log := logging.New("off", "console", io.Discard)
	p, err := pipeline.New(pipeline.Options{
		Home:       home,
		SourceURL:  seedSourceRepo(t),
		WeightsURL: weightsServer(t).URL,
		Shell:      "/bin/sh",
		Strategy:   &strategy,
		Sink:       notify.NewBroadcaster(hub, notify.LogSink{Log: log}),
		Logger:     log,
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(p, hub))
	t.Cleanup(srv.Close)
	t.Cleanup(p.Stop)
	return &stack{srv: srv, p: p, home: p.Home()}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// eventStream is an open /events subscription.
type eventStream struct {
	resp   *http.Response
	cancel context.CancelFunc
	lines  *bufio.Scanner
}

func openEvents(t *testing.T, base string) *eventStream {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/events", nil)
	if err != nil {
		cancel()
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("open events: %v", err)
	}
	es := &eventStream{resp: resp, cancel: cancel, lines: bufio.NewScanner(resp.Body)}
	t.Cleanup(es.close)
	return es
}

func (es *eventStream) close() {
	es.cancel()
	_ = es.resp.Body.Close()
}

// until collects events up to and including the first one of kind.
func (es *eventStream) until(t *testing.T, kind notify.Kind) []notify.Event {
	t.Helper()
	var out []notify.Event
	for es.lines.Scan() {
		var ev notify.Event
		if err := json.Unmarshal(es.lines.Bytes(), &ev); err != nil {
			t.Fatalf("decode event %q: %v", es.lines.Text(), err)
		}
		out = append(out, ev)
		if ev.Kind == kind {
			return out
		}
	}
	t.Fatalf("event stream ended before %s: %v (got %d events)", kind, es.lines.Err(), len(out))
	return nil
}
