package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatd/internal/manager"
	"chatd/internal/stream"
	"chatd/pkg/types"
)

// Version is reported by GET / and the CLI.
const Version = "1.3.0"

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Ready() bool
	Health() types.HealthResponse
	Models() types.ModelList
	Status() types.StatusResponse
	ChatCompletion(ctx context.Context, req types.ChatCompletionRequest) (types.ChatCompletionResponse, error)
	StreamChatCompletion(ctx context.Context, req types.ChatCompletionRequest, open manager.OpenStream) error
}

func requestID(r *http.Request) string { return middleware.GetReqID(r.Context()) }

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		origins, methods, headers := corsOptionsOrDefault()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   methods,
			AllowedHeaders:   headers,
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	// Compression for JSON endpoints; event streams pass through untouched
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.RootResponse{
			Message:     "Local LLM Service",
			Version:     Version,
			ModelLoaded: svc.Ready(),
			Endpoints: map[string]string{
				"chat":    "/v1/chat/completions",
				"models":  "/v1/models",
				"health":  "/health",
				"status":  "/status",
				"metrics": "/metrics",
			},
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Health())
	})

	r.Get("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Models())
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Post("/v1/chat/completions", chatCompletions(svc))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// readChatRequest enforces content type, body size and the request schema.
// The returned status is 0 on success.
func readChatRequest(w http.ResponseWriter, r *http.Request) (types.ChatCompletionRequest, int, error) {
	var req types.ChatCompletionRequest
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return req, http.StatusUnsupportedMediaType, errors.New("Content-Type must be application/json")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, http.StatusBadRequest, errors.New("request body too large")
		}
		return req, http.StatusBadRequest, errInvalidJSON
	}
	if err := validateChatRequest(body); err != nil {
		return req, http.StatusBadRequest, err
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, http.StatusBadRequest, errInvalidJSON
	}
	return req, 0, nil
}

func chatCompletions(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lvl := requestLogLevel(r)
		log := requestLogger(r, lvl)

		req, status, err := readChatRequest(w, r)
		if err != nil {
			log.Info().Int("status", status).Err(err).Msg("chat rejected")
			recordChat(false, outcomeRejected)
			writeJSONError(w, status, err.Error())
			return
		}

		start := time.Now()
		log.Info().Str("model", req.Model).Bool("stream", req.Stream).Int("messages", len(req.Messages)).Msg("chat start")

		ctx, cancel := joinContexts(baseContext(), r.Context())
		defer cancel()

		fail := func(err error, opened bool) {
			// client went away or the server is stopping: nobody to answer
			if ctx.Err() != nil {
				log.Info().Dur("dur", time.Since(start)).Err(err).AnErr("cause", context.Cause(ctx)).Msg("chat canceled")
				recordChat(req.Stream, outcomeCanceled)
				return
			}
			status := statusFor(err)
			recordChat(req.Stream, outcomeFor(status))
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("queue")
			}
			ev := log.Info()
			if status >= http.StatusInternalServerError {
				ev = log.Error()
			}
			ev.Int("status", status).Bool("in_stream", opened).Dur("dur", time.Since(start)).Err(err).Msg("chat end")
			// an opened stream already carries the error frame
			if !opened {
				writeJSONError(w, status, err.Error())
			}
		}

		if req.Stream {
			opened := false
			err := svc.StreamChatCompletion(ctx, req, func() (*stream.Writer, error) {
				sw, err := stream.NewWriter(w, log)
				if err == nil {
					opened = true
				}
				return sw, err
			})
			if err != nil {
				fail(err, opened)
				return
			}
			recordChat(true, outcomeOK)
			log.Info().Int("status", http.StatusOK).Dur("dur", time.Since(start)).Msg("chat end")
			return
		}

		resp, err := svc.ChatCompletion(ctx, req)
		if err != nil {
			fail(err, false)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		recordChat(false, outcomeOK)
		log.Info().Int("status", http.StatusOK).Int("completion_tokens", resp.Usage.CompletionTokens).Dur("dur", time.Since(start)).Msg("chat end")
	}
}
