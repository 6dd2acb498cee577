package blackbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	cleanup := func(){ _ = ln.Close() }
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return port, cleanup
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	bbDir := filepath.Dir(thisFile)
	root := filepath.Dir(filepath.Dir(bbDir))
	return root
}

func buildBinary(t *testing.T) string {
	t.Helper()
	root := projectRootFromThisFile(t)
	outDir := t.TempDir()
	binPath := filepath.Join(outDir, "llamactl")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/llamactl")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

// createInstalledHome lays out a home directory in which the given models
// look fully installed.
func createInstalledHome(t *testing.T, names ...string) string {
	t.Helper()
	home := t.TempDir()
	for _, n := range names {
		p := filepath.Join(home, "models", n, "ggml-model-q4_0.bin")
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", p, err)
		}
		if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	return home
}

type serverProc struct {
	cmd  *exec.Cmd
	base string // http base URL, e.g. http://127.0.0.1:18080
}

func startServer(t *testing.T, bin string, home string, port int) *serverProc {
	t.Helper()
	addr := fmt.Sprintf(":%d", port)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	args := []string{
		"serve",
		"--addr", addr,
		"--home", home,
		"--log-level", "error",
	}
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), "LLAMACTL_QUERY_BACKEND=process")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	// Wait for healthz
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			_ = cmd.Process.Kill()
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	sp := &serverProc{cmd: cmd, base: base}
	t.Cleanup(func(){ _ = cmd.Process.Kill() })
	return sp
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func postJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestBlackbox_Flow(t *testing.T) {
	// Build server binary
	bin := buildBinary(t)
	home := createInstalledHome(t, "7B")
	// Reserve a free port, then release listener before starting the server
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, home, port)

	// /healthz
	resp, body := get(t, sp.base+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz %d %s", resp.StatusCode, string(body))
	}

	// /models lists every size class
	resp, body = get(t, sp.base+"/models")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/models %d %s", resp.StatusCode, string(body))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("/models content-type=%s", ct)
	}
	var modelsResp struct {
		Models []struct {
			Name      string `json:"name"`
			Installed bool   `json:"installed"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &modelsResp); err != nil {
		t.Fatalf("/models json: %v body=%s", err, string(body))
	}
	if len(modelsResp.Models) != 4 {
		t.Fatalf("expected 4 models, got %d", len(modelsResp.Models))
	}
	if !modelsResp.Models[0].Installed || modelsResp.Models[1].Installed {
		t.Fatalf("unexpected installed flags: %+v", modelsResp.Models)
	}

	// /installed
	resp, body = get(t, sp.base+"/installed")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/installed %d %s", resp.StatusCode, string(body))
	}
	if !bytes.Contains(body, []byte(`"7B"`)) {
		t.Fatalf("/installed body=%s", string(body))
	}

	// /status is idle
	resp, body = get(t, sp.base+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status %d %s", resp.StatusCode, string(body))
	}
	var statusResp struct {
		Running bool   `json:"running"`
		Home    string `json:"home"`
	}
	if err := json.Unmarshal(body, &statusResp); err != nil {
		t.Fatalf("/status json: %v body=%s", err, string(body))
	}
	if statusResp.Running || statusResp.Home == "" {
		t.Fatalf("unexpected status: %s", string(body))
	}

	// /query for a model without weights only reports completion
	resp, body = postJSON(t, sp.base+"/query", []byte(`{"prompt":"hello","model":"13B"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/query %d %s", resp.StatusCode, string(body))
	}
	if string(body) != "{\"done\":true}\n" {
		t.Fatalf("/query expected a lone done chunk, got: %q", string(body))
	}

	// /metrics exposes our namespace
	resp, body = get(t, sp.base+"/metrics")
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("llamactl_http_requests_total")) {
		t.Fatalf("/metrics %d", resp.StatusCode)
	}
}

func TestBlackbox_Install_UnknownModel_400(t *testing.T) {
	bin := buildBinary(t)
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, t.TempDir(), port)

	resp, body := postJSON(t, sp.base+"/install", []byte(`{"models":["8B"]}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d, body=%s", resp.StatusCode, string(body))
	}
}

func TestBlackbox_Query_UnsupportedMediaType_415(t *testing.T) {
	bin := buildBinary(t)
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, t.TempDir(), port)

	resp, err := http.Post(sp.base+"/query", "text/plain", strings.NewReader("hi"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", resp.StatusCode)
	}
}

func TestBlackbox_InstalledCommand(t *testing.T) {
	bin := buildBinary(t)
	home := createInstalledHome(t, "7B", "30B")
	out, err := exec.Command(bin, "installed", "--home", home, "--log-level", "off").Output()
	if err != nil {
		t.Fatalf("installed: %v", err)
	}
	if got := strings.Fields(string(out)); len(got) != 2 || got[0] != "30B" || got[1] != "7B" {
		t.Fatalf("unexpected output: %q", string(out))
	}
}
