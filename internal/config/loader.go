package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by Default() in Resolve.
type Config struct {
	Addr        string `json:"addr" yaml:"addr" toml:"addr" mapstructure:"addr"`
	Environment string `json:"environment" yaml:"environment" toml:"environment" mapstructure:"environment"`
	LogLevel    string `json:"log_level" yaml:"log_level" toml:"log_level" mapstructure:"log_level"`

	ModelPath   string `json:"model_path" yaml:"model_path" toml:"model_path" mapstructure:"model_path"`
	ModelName   string `json:"model_name" yaml:"model_name" toml:"model_name" mapstructure:"model_name"`
	Backend     string `json:"backend" yaml:"backend" toml:"backend" mapstructure:"backend"`
	Device      string `json:"device" yaml:"device" toml:"device" mapstructure:"device"`
	Threads     int    `json:"threads" yaml:"threads" toml:"threads" mapstructure:"threads"`
	ContextSize int    `json:"context_size" yaml:"context_size" toml:"context_size" mapstructure:"context_size"`

	EnableDynamicInt8 bool    `json:"enable_dynamic_int8" yaml:"enable_dynamic_int8" toml:"enable_dynamic_int8" mapstructure:"enable_dynamic_int8"`
	SafeQuant         bool    `json:"safe_quant" yaml:"safe_quant" toml:"safe_quant" mapstructure:"safe_quant"`
	QuantHeadroom     float64 `json:"quant_headroom" yaml:"quant_headroom" toml:"quant_headroom" mapstructure:"quant_headroom"`

	MaxBodyBytes        int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InferTimeoutSeconds int64 `json:"infer_timeout_seconds" yaml:"infer_timeout_seconds" toml:"infer_timeout_seconds" mapstructure:"infer_timeout_seconds"`
	MaxQueueDepth       int   `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth" mapstructure:"max_queue_depth"`
	MaxWaitSeconds      int64 `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds" mapstructure:"max_wait_seconds"`

	DefaultSystemPrompt string `json:"default_system_prompt" yaml:"default_system_prompt" toml:"default_system_prompt" mapstructure:"default_system_prompt"`
	FallbackText        string `json:"fallback_text" yaml:"fallback_text" toml:"fallback_text" mapstructure:"fallback_text"`
	DefaultMaxTokens    int    `json:"default_max_tokens" yaml:"default_max_tokens" toml:"default_max_tokens" mapstructure:"default_max_tokens"`

	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled" mapstructure:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins" mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods" mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers" mapstructure:"cors_allowed_headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	err := decodeFile(path, &cfg)
	return cfg, err
}

// loadMap reads a configuration file into a generic map so that only the
// keys present in the file take part in merging.
func loadMap(path string) (map[string]any, error) {
	m := map[string]any{}
	err := decodeFile(path, &m)
	return m, err
}

func decodeFile(path string, out any) error {
	if path == "" {
		return fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, out); err != nil {
			return err
		}
	case ".json":
		if err := json.Unmarshal(b, out); err != nil {
			return err
		}
	case ".toml":
		if err := toml.Unmarshal(b, out); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	return nil
}
