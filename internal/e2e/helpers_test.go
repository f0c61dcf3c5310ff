package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatd/internal/backend/native"
	"chatd/internal/client"
	"chatd/internal/httpapi"
	"chatd/internal/manager"
	"chatd/internal/memory"
)

// writeModel generates a tiny native model directory.
func writeModel(t *testing.T, opts native.TestModelOptions) string {
	t.Helper()
	dir := t.TempDir()
	if _, err := native.WriteTestModel(dir, opts); err != nil {
		t.Fatalf("write test model: %v", err)
	}
	return dir
}

func baseConfig(modelPath string) manager.ManagerConfig {
	return manager.ManagerConfig{
		ModelPath:         modelPath,
		Device:            manager.DeviceCPU,
		EnableDynamicInt8: true,
		SafeQuant:         true,
		MemoryProbe:       memory.Fixed(1 << 40),
		MaxWait:           time.Second,
	}
}

// newServer starts the HTTP API over a manager built from cfg. The model is
// not loaded; callers decide when to call Load.
func newServer(t *testing.T, cfg manager.ManagerConfig) (*httptest.Server, *manager.Manager, *client.Client) {
	t.Helper()
	mgr := manager.NewWithConfig(cfg)
	t.Cleanup(func() { _ = mgr.Close() })
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(srv.Close)
	return srv, mgr, client.New(srv.URL, 30*time.Second)
}

// newLoadedServer is newServer followed by a synchronous Load.
func newLoadedServer(t *testing.T, cfg manager.ManagerConfig) (*httptest.Server, *manager.Manager, *client.Client) {
	t.Helper()
	srv, mgr, c := newServer(t, cfg)
	if err := mgr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return srv, mgr, c
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

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
