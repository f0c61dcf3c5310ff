package main

import (
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chatd/internal/config"
	"chatd/internal/httpapi"
	"chatd/internal/manager"
	"chatd/internal/memory"
	"chatd/internal/sampling"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "chatd",
		Short:         "OpenAI compatible chat service for a local model",
		Version:       httpapi.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file (.yaml, .json or .toml)")
	pf.String("log-level", "info", "log level: debug|info|warn|error (env CHATD_LOG_LEVEL)")
	pf.String("environment", "production", "production or development; development logs to the console (env ENVIRONMENT)")

	root.AddCommand(
		newServeCmd(opts),
		newCheckCmd(opts),
		newInspectCmd(opts),
		newModelsCmd(opts),
		newCreateTestModelCmd(),
		newGenTSCmd(),
		newChatCmd(),
	)
	return root
}

// addModelFlags registers the flags that select and load a model.
func addModelFlags(cmd *cobra.Command) {
	d := config.Default()
	f := cmd.Flags()
	f.String("model-path", d.ModelPath, "model directory or .gguf file (env MODEL_PATH)")
	f.String("model-name", d.ModelName, "served model label")
	f.String("backend", d.Backend, "auto|native|llama")
	f.String("device", d.Device, "auto|cpu|gpu")
	f.Int("threads", 0, "CPU threads, 0 uses every core")
	f.Int("context-size", 0, "llama.cpp context size, 0 uses the backend default")
	f.Bool("enable-dynamic-int8", d.EnableDynamicInt8, "quantize linear layers to int8 on CPU (env ENABLE_DYNAMIC_INT8)")
	f.Bool("safe-quant", d.SafeQuant, "quantize layer by layer (env SAFE_QUANT)")
	f.Float64("quant-headroom", d.QuantHeadroom, "required free memory as a multiple of the model size")
}

// loadConfig resolves configuration for cmd from file, env and flags.
func loadConfig(opts *globalOptions, cmd *cobra.Command) (config.Config, error) {
	return config.Resolve(opts.configPath, cmd.Flags())
}

// newLogger builds the process logger: console output in development, JSON
// otherwise.
func newLogger(cfg config.Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	if cfg.Development() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "chatd").Logger()
}

// applyThreads pins the Go scheduler to n threads, every core when n <= 0,
// and returns the value used.
func applyThreads(n int) int {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	runtime.GOMAXPROCS(n)
	return n
}

func managerConfig(cfg config.Config, threads int, log *zerolog.Logger) manager.ManagerConfig {
	return manager.ManagerConfig{
		ModelPath:           cfg.ModelPath,
		ModelName:           cfg.ModelName,
		Backend:             cfg.Backend,
		Device:              cfg.Device,
		Threads:             threads,
		ContextSize:         cfg.ContextSize,
		EnableDynamicInt8:   cfg.EnableDynamicInt8,
		SafeQuant:           cfg.SafeQuant,
		QuantHeadroom:       cfg.QuantHeadroom,
		MemoryProbe:         memory.System(),
		MaxQueueDepth:       cfg.MaxQueueDepth,
		MaxWait:             time.Duration(cfg.MaxWaitSeconds) * time.Second,
		InferTimeout:        time.Duration(cfg.InferTimeoutSeconds) * time.Second,
		DefaultSystemPrompt: cfg.DefaultSystemPrompt,
		FallbackText:        cfg.FallbackText,
		DefaultMaxTokens:    cfg.DefaultMaxTokens,
		Sampling:            sampling.Defaults,
		Logger:              log,
	}
}

// splitCSV splits a comma separated flag value, dropping blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
