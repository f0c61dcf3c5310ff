package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CHATD_MODEL_PATH.
const EnvPrefix = "CHATD"

// legacyEnv lists unprefixed variable names honoured for compatibility with
// existing deployments. The prefixed name wins when both are set.
var legacyEnv = map[string]string{
	"model_path":          "MODEL_PATH",
	"enable_dynamic_int8": "ENABLE_DYNAMIC_INT8",
	"safe_quant":          "SAFE_QUANT",
	"environment":         "ENVIRONMENT",
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:                ":8080",
		Environment:         "production",
		LogLevel:            "info",
		ModelPath:           "~/models/exaone-4.0-1.2b",
		ModelName:           "lg-exaone",
		Backend:             "auto",
		Device:              "auto",
		EnableDynamicInt8:   true,
		SafeQuant:           true,
		QuantHeadroom:       1.2,
		MaxBodyBytes:        1 << 20,
		MaxQueueDepth:       32,
		MaxWaitSeconds:      30,
		DefaultSystemPrompt: "한국어로 간결하고 정확하게 답변하세요.",
		FallbackText:        "안녕하세요! 무엇을 도와드릴까요?",
		DefaultMaxTokens:    512,
	}
}

// keys returns the viper keys of Config with their default values.
func (c Config) keys() map[string]any {
	return map[string]any{
		"addr":                  c.Addr,
		"environment":           c.Environment,
		"log_level":             c.LogLevel,
		"model_path":            c.ModelPath,
		"model_name":            c.ModelName,
		"backend":               c.Backend,
		"device":                c.Device,
		"threads":               c.Threads,
		"context_size":          c.ContextSize,
		"enable_dynamic_int8":   c.EnableDynamicInt8,
		"safe_quant":            c.SafeQuant,
		"quant_headroom":        c.QuantHeadroom,
		"max_body_bytes":        c.MaxBodyBytes,
		"infer_timeout_seconds": c.InferTimeoutSeconds,
		"max_queue_depth":       c.MaxQueueDepth,
		"max_wait_seconds":      c.MaxWaitSeconds,
		"default_system_prompt": c.DefaultSystemPrompt,
		"fallback_text":         c.FallbackText,
		"default_max_tokens":    c.DefaultMaxTokens,
		"cors_enabled":          c.CORSEnabled,
		"cors_allowed_origins":  c.CORSAllowedOrigins,
		"cors_allowed_methods":  c.CORSAllowedMethods,
		"cors_allowed_headers":  c.CORSAllowedHeaders,
	}
}

// Resolve merges defaults, the optional config file at path, environment
// variables and flags, in increasing order of precedence. Flags are matched
// by key with underscores written as dashes (model_path -> --model-path) and
// only count when set on the command line. flags may be nil.
func Resolve(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	for k, d := range Default().keys() {
		v.SetDefault(k, d)
	}

	if path != "" {
		m, err := loadMap(path)
		if err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
		if err := v.MergeConfigMap(m); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(key), legacy); err != nil {
			return Config{}, err
		}
	}

	if flags != nil {
		for k := range Default().keys() {
			if f := flags.Lookup(strings.ReplaceAll(k, "_", "-")); f != nil {
				if err := v.BindPFlag(k, f); err != nil {
					return Config{}, err
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the service cannot start with.
func (c Config) Validate() error {
	switch c.Backend {
	case "auto", "native", "llama":
	default:
		return fmt.Errorf("backend must be auto, native or llama, got %q", c.Backend)
	}
	switch c.Device {
	case "auto", "cpu", "gpu":
	default:
		return fmt.Errorf("device must be auto, cpu or gpu, got %q", c.Device)
	}
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.QuantHeadroom < 1 {
		return fmt.Errorf("quant_headroom must be at least 1, got %v", c.QuantHeadroom)
	}
	if c.DefaultMaxTokens <= 0 {
		return fmt.Errorf("default_max_tokens must be positive")
	}
	if c.Threads < 0 || c.ContextSize < 0 || c.MaxQueueDepth < 0 || c.MaxWaitSeconds < 0 || c.InferTimeoutSeconds < 0 {
		return fmt.Errorf("numeric limits must not be negative")
	}
	return nil
}

// Development reports whether the service runs in development mode.
func (c Config) Development() bool { return strings.EqualFold(c.Environment, "development") }
