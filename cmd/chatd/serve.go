package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatd/internal/config"
	"chatd/internal/httpapi"
	"chatd/internal/manager"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the model and serve the HTTP API",
		Long: "serve starts listening immediately and loads the model in the background.\n" +
			"Chat requests get 503 until the model is ready.",
		Example: "  chatd serve --model-path ~/models/exaone --device cpu\n  MODEL_PATH=./model.gguf chatd serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	addModelFlags(cmd)
	d := config.Default()
	f := cmd.Flags()
	f.String("addr", d.Addr, "HTTP listen address (env CHATD_ADDR)")
	f.Int64("max-body-bytes", d.MaxBodyBytes, "maximum request body size")
	f.Int64("infer-timeout-seconds", 0, "per generation timeout, 0 disables")
	f.Int("max-queue-depth", d.MaxQueueDepth, "requests allowed to wait for the model")
	f.Int64("max-wait-seconds", d.MaxWaitSeconds, "how long a queued request waits before 429")
	f.Int("default-max-tokens", d.DefaultMaxTokens, "max_tokens used when a request omits it")
	f.String("default-system-prompt", d.DefaultSystemPrompt, "system message added when a request has none")
	f.String("fallback-text", d.FallbackText, "answer used when the model produces nothing")
	f.Bool("cors-enabled", false, "enable CORS")
	f.String("cors-allowed-origins", "", "comma separated origins, empty allows any")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cfg, nil)
	threads := applyThreads(cfg.Threads)

	httpapi.SetLogger(logger)
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins, cfg.CORSAllowedMethods, cfg.CORSAllowedHeaders)

	mc := managerConfig(cfg, threads, &logger)
	mc.Publisher = manager.NewLogPublisher(&logger)
	mgr := manager.NewWithConfig(mc)
	defer mgr.Close()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Addr).
			Str("model_path", cfg.ModelPath).
			Str("environment", cfg.Environment).
			Int("threads", threads).
			Msg("chatd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		// a failed load leaves the server up and answering 503 so health
		// checks can report the error
		_ = mgr.Load(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
		return err
	}
	return nil
}
