package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"chatd/internal/manager"
	"chatd/pkg/types"
)

func TestChatLogsWithZerologInfo(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer SetLogger(zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions?log=info", bytes.NewBufferString(helloBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with info logging, got %d", rec.Code)
	}
	out := buf.String()
	if !strings.Contains(out, "chat start") || !strings.Contains(out, "chat end") {
		t.Fatalf("missing log lines: %q", out)
	}
	if !strings.Contains(out, `"request_id"`) {
		t.Fatalf("missing request id: %q", out)
	}
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	// Enable CORS temporarily
	SetCORSOptions(true, []string{"*"}, []string{"GET", "POST", "OPTIONS"}, []string{"Content-Type"})
	defer SetCORSOptions(false, nil, nil, nil)

	h := NewMux(&mockService{ready: true})
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options=nosniff, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("expected CORS header Access-Control-Allow-Origin to be set, got empty")
	}
}

func TestCORSDisabledByDefault(t *testing.T) {
	h := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected CORS header %q", got)
	}
}

func TestContentTypeCaseInsensitive(t *testing.T) {
	w := postChat(NewMux(&mockService{}), helloBody, "Application/JSON; charset=utf-8")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with mixed-case content-type, got %d", w.Code)
	}
}

func TestStreamErrorBeforeOpenIsJSON(t *testing.T) {
	svc := &mockService{streamErr: manager.ErrNotReady}
	body := `{"messages":[{"role":"user","content":"hi"}],"stream":true}`
	w := postChat(NewMux(svc), body, "application/json")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
}

func TestStreamErrorAfterOpenIsInBand(t *testing.T) {
	svc := &mockService{streamErr: errors.New("decode exploded"), afterOpen: true}
	body := `{"messages":[{"role":"user","content":"hi"}],"stream":true}`
	w := postChat(NewMux(svc), body, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("headers were already sent, got %d", w.Code)
	}
	frame := strings.TrimSpace(w.Body.String())
	if !strings.HasPrefix(frame, "data: ") {
		t.Fatalf("frame=%q", frame)
	}
	var se types.StreamError
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &se); err != nil {
		t.Fatalf("json: %v", err)
	}
	if se.Error.Code != http.StatusInternalServerError || se.Error.Error != "decode exploded" {
		t.Fatalf("error frame=%+v", se)
	}
	if strings.Contains(w.Body.String(), "[DONE]") {
		t.Fatal("failed stream must not end with [DONE]")
	}
}

// blockService waits for cancellation; used to check that a canceled
// request does not get a JSON error appended.
type blockService struct{ mockService }

func (b *blockService) ChatCompletion(ctx context.Context, req types.ChatCompletionRequest) (types.ChatCompletionResponse, error) {
	<-ctx.Done()
	return types.ChatCompletionResponse{}, ctx.Err()
}

func TestChatCanceledWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(helloBody)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	cancel()
	NewMux(&blockService{}).ServeHTTP(rec, req)
	if rec.Body.Len() != 0 {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestBaseContextCancelsGeneration(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	SetBaseContext(base)
	defer SetBaseContext(context.Background())
	cancel()

	rec := postChat(NewMux(&blockService{}), helloBody, "application/json")
	if rec.Body.Len() != 0 {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestChatDebugLoggingTeesFrames(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer SetLogger(zerolog.Nop())

	body := `{"messages":[{"role":"user","content":"hi"}],"stream":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions?log=debug", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.Contains(buf.String(), `"message":"sse"`) {
		t.Fatalf("frames not logged: %q", buf.String())
	}
	_, _ = io.Copy(io.Discard, rec.Body)
}
