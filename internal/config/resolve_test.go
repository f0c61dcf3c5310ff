package config

import (
	"testing"

	"github.com/spf13/pflag"
)

// clearEnv unsets every variable Resolve looks at for the duration of t.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CHATD_MODEL_PATH", "MODEL_PATH", "CHATD_ENABLE_DYNAMIC_INT8", "ENABLE_DYNAMIC_INT8",
		"CHATD_SAFE_QUANT", "SAFE_QUANT", "CHATD_ENVIRONMENT", "ENVIRONMENT", "CHATD_ADDR", "CHATD_DEVICE", "CHATD_CORS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}
}

func TestResolveDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Resolve("", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := Default()
	if cfg.Addr != want.Addr || cfg.ModelName != "lg-exaone" || !cfg.EnableDynamicInt8 || !cfg.SafeQuant || cfg.QuantHeadroom != 1.2 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DefaultMaxTokens != 512 || cfg.MaxQueueDepth != 32 || cfg.Development() {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestResolveLegacyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_PATH", "/legacy/model")
	t.Setenv("ENABLE_DYNAMIC_INT8", "0")
	t.Setenv("SAFE_QUANT", "0")
	t.Setenv("ENVIRONMENT", "development")
	cfg, err := Resolve("", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.ModelPath != "/legacy/model" || cfg.EnableDynamicInt8 || cfg.SafeQuant || !cfg.Development() {
		t.Fatalf("legacy env ignored: %+v", cfg)
	}

	t.Setenv("CHATD_MODEL_PATH", "/prefixed")
	cfg, err = Resolve("", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.ModelPath != "/prefixed" {
		t.Fatalf("prefixed variable should win, got %q", cfg.ModelPath)
	}
}

func TestResolvePrecedence(t *testing.T) {
	clearEnv(t)
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9000\ndevice: cpu\nmodel_path: /from/file\nmax_queue_depth: 3\n")
	t.Setenv("CHATD_ADDR", ":9100")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("addr", ":8080", "")
	fs.String("device", "auto", "")
	if err := fs.Parse([]string{"--addr", ":9200"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg, err := Resolve(p, fs)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Addr != ":9200" {
		t.Fatalf("flag should win, addr=%q", cfg.Addr)
	}
	// unset flag keeps the file value
	if cfg.Device != "cpu" || cfg.ModelPath != "/from/file" || cfg.MaxQueueDepth != 3 {
		t.Fatalf("file values lost: %+v", cfg)
	}
	// keys missing from the file keep their defaults
	if cfg.DefaultMaxTokens != 512 || !cfg.SafeQuant {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestResolveEnvOverFile(t *testing.T) {
	clearEnv(t)
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":9000"}`)
	t.Setenv("CHATD_ADDR", ":9100")
	t.Setenv("CHATD_CORS_ALLOWED_ORIGINS", "http://a,http://b")
	cfg, err := Resolve(p, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Addr != ":9100" {
		t.Fatalf("env should beat file, addr=%q", cfg.Addr)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "http://b" {
		t.Fatalf("origins=%v", cfg.CORSAllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Backend = "onnx" },
		func(c *Config) { c.Device = "tpu" },
		func(c *Config) { c.Addr = "" },
		func(c *Config) { c.QuantHeadroom = 0.5 },
		func(c *Config) { c.DefaultMaxTokens = 0 },
		func(c *Config) { c.Threads = -1 },
	}
	for i, mutate := range bad {
		c := Default()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestResolveBadFile(t *testing.T) {
	clearEnv(t)
	if _, err := Resolve("/definitely/missing.yaml", nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}
