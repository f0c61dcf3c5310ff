package httpapi

import (
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer. It discards output until
// SetLogger is called.
var zlog = func() *zerolog.Logger { l := zerolog.Nop(); return &l }()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return LevelOff
	case "error", "warn", "warning":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = func() LogLevel {
	if os.Getenv("CHATD_LOG_STREAM") == "1" {
		return LevelDebug
	}
	return parseLevel(os.Getenv("CHATD_LOG_LEVEL"))
}()

// SetDefaultLogLevel overrides the level used when a request carries none.
func SetDefaultLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	if r.Header.Get("X-Log-Stream") == "1" {
		return LevelDebug
	}
	return defaultLogLevel
}

// requestLogger returns the logger for one request. At debug level SSE
// frames are logged too.
func requestLogger(r *http.Request, lvl LogLevel) *zerolog.Logger {
	l := zlog.With().Str("path", r.URL.Path)
	if rid := requestID(r); rid != "" {
		l = l.Str("request_id", rid)
	}
	out := l.Logger()
	switch lvl {
	case LevelDebug:
		out = out.Level(zerolog.DebugLevel)
	case LevelInfo:
		out = out.Level(zerolog.InfoLevel)
	case LevelError:
		out = out.Level(zerolog.ErrorLevel)
	default:
		out = out.Level(zerolog.Disabled)
	}
	return &out
}
