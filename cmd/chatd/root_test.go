package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chatd/internal/config"
	"chatd/internal/sampling"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("chatd %v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestManagerConfigFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MaxWaitSeconds = 7
	cfg.InferTimeoutSeconds = 3
	mc := managerConfig(cfg, 4, nil)
	if mc.Threads != 4 || mc.ModelPath != cfg.ModelPath || mc.QuantHeadroom != 1.2 {
		t.Fatalf("unexpected manager config: %+v", mc)
	}
	if mc.MaxWait != 7*time.Second || mc.InferTimeout != 3*time.Second {
		t.Fatalf("durations: wait=%v infer=%v", mc.MaxWait, mc.InferTimeout)
	}
	if mc.Sampling != sampling.Defaults {
		t.Fatalf("sampling = %+v", mc.Sampling)
	}
	if mc.MemoryProbe == nil {
		t.Fatal("memory probe not set")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.LogLevel = "warn"
	log := newLogger(cfg, &buf)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"message":"shown"`) {
		t.Fatalf("log output: %s", buf.String())
	}

	buf.Reset()
	cfg.LogLevel = "bogus"
	cfg.Environment = "development"
	log = newLogger(cfg, &buf)
	log.Info().Msg("console")
	if strings.Contains(buf.String(), "{") || !strings.Contains(buf.String(), "console") {
		t.Fatalf("expected console output, got %s", buf.String())
	}
}

func TestHumanBytes(t *testing.T) {
	cases := map[int64]string{
		512:     "512 B",
		2048:    "2.0 KiB",
		3 << 30: "3.0 GiB",
	}
	for n, want := range cases {
		if got := humanBytes(n); got != want {
			t.Fatalf("humanBytes(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestCreateTestModelThenList(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "tiny")
	out := run(t, "create-test-model", dir, "--layers", "1")
	if !strings.Contains(out, "layers=1") {
		t.Fatalf("create-test-model output: %s", out)
	}

	out = run(t, "models", "--dirs", root)
	if !strings.Contains(out, "tiny") || !strings.Contains(out, "native") {
		t.Fatalf("models output: %s", out)
	}
}

func TestGenTSWritesInterfaces(t *testing.T) {
	out := run(t, "gen-ts")
	for _, name := range []string{"ChatMessage", "ChatCompletionRequest", "ChatCompletionChunk"} {
		if !strings.Contains(out, "interface "+name) {
			t.Fatalf("missing %s in:\n%s", name, out)
		}
	}
}
