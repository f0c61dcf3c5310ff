package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatd/internal/manager"
	"chatd/pkg/types"
)

type mockService struct {
	models    types.ModelList
	status    types.StatusResponse
	ready     bool
	chatErr   error
	streamErr error
	// afterOpen makes the stream fail once the SSE response has started
	afterOpen bool
	lastReq   types.ChatCompletionRequest
}

func (m *mockService) Ready() bool { return m.ready }
func (m *mockService) Health() types.HealthResponse {
	return types.HealthResponse{Status: "healthy", ModelLoaded: m.ready}
}
func (m *mockService) Models() types.ModelList      { return m.models }
func (m *mockService) Status() types.StatusResponse { return m.status }

func (m *mockService) ChatCompletion(ctx context.Context, req types.ChatCompletionRequest) (types.ChatCompletionResponse, error) {
	m.lastReq = req
	if m.chatErr != nil {
		return types.ChatCompletionResponse{}, m.chatErr
	}
	return types.ChatCompletionResponse{
		ID:     "chatcmpl-test",
		Object: types.ObjectChatCompletion,
		Model:  "lg-exaone",
		Choices: []types.ChatCompletionChoice{{
			Message:      types.ChatMessage{Role: "assistant", Content: "안녕하세요"},
			FinishReason: "stop",
		}},
		Usage: types.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
	}, nil
}

func (m *mockService) StreamChatCompletion(ctx context.Context, req types.ChatCompletionRequest, open manager.OpenStream) error {
	m.lastReq = req
	if m.streamErr != nil && !m.afterOpen {
		return m.streamErr
	}
	sw, err := open()
	if err != nil {
		return err
	}
	if m.streamErr != nil {
		_ = sw.Error(http.StatusInternalServerError, m.streamErr.Error())
		return m.streamErr
	}
	reason := "stop"
	_ = sw.Event(types.ChatCompletionChunk{ID: "chatcmpl-test", Object: types.ObjectChatCompletionChunk,
		Choices: []types.ChatCompletionChunkChoice{{Delta: types.ChunkDelta{Content: "안녕"}}}})
	_ = sw.Event(types.ChatCompletionChunk{ID: "chatcmpl-test", Object: types.ObjectChatCompletionChunk,
		Choices: []types.ChatCompletionChunkChoice{{FinishReason: &reason}}})
	return sw.Done()
}

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

const helloBody = `{"model":"lg-exaone","messages":[{"role":"user","content":"안녕"}]}`

func postChat(h http.Handler, body, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var e types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("error body is not JSON: %v (%q)", err, w.Body.String())
	}
	return e
}

func TestModelsHandler(t *testing.T) {
	svc := &mockService{models: types.ModelList{Object: types.ObjectList, Data: []types.ModelCard{{ID: "lg-exaone", Object: types.ObjectModel}}}}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.ModelList
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Object != "list" || len(body.Data) != 1 || body.Data[0].ID != "lg-exaone" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready", MaxLength: 4096}}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.State != "ready" || body.MaxLength != 4096 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHealthAndRoot(t *testing.T) {
	svc := &mockService{ready: true}
	r := NewMux(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var h types.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &h); err != nil {
		t.Fatalf("json: %v", err)
	}
	if h.Status != "healthy" || !h.ModelLoaded {
		t.Fatalf("health=%+v", h)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	var root types.RootResponse
	if err := json.Unmarshal(w.Body.Bytes(), &root); err != nil {
		t.Fatalf("json: %v", err)
	}
	if root.Version != Version || !root.ModelLoaded || root.Endpoints["chat"] != "/v1/chat/completions" {
		t.Fatalf("root=%+v", root)
	}
}

func TestReadyz(t *testing.T) {
	svc := &mockService{ready: true}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	svc := &mockService{ready: false}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "loading") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestChatCompletion(t *testing.T) {
	svc := &mockService{}
	w := postChat(NewMux(svc), helloBody, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	// Korean text is written as UTF-8, not \u escapes
	if !strings.Contains(w.Body.String(), "안녕하세요") {
		t.Fatalf("body=%s", w.Body.String())
	}
	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Object != "chat.completion" || resp.Usage.TotalTokens != 4 {
		t.Fatalf("resp=%+v", resp)
	}
	if len(svc.lastReq.Messages) != 1 || svc.lastReq.Messages[0].Content != "안녕" {
		t.Fatalf("request not forwarded: %+v", svc.lastReq)
	}
}

func TestChatCompletionStreams(t *testing.T) {
	svc := &mockService{}
	body := `{"messages":[{"role":"user","content":"안녕"}],"stream":true}`
	w := postChat(NewMux(svc), body, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content-type=%s", ct)
	}
	frames := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d: %q", len(frames), w.Body.String())
	}
	if frames[2] != "data: [DONE]" {
		t.Fatalf("last frame=%q", frames[2])
	}
	if !svc.lastReq.Stream {
		t.Fatal("stream flag not forwarded")
	}
}

func TestChatBadJSON(t *testing.T) {
	w := postChat(NewMux(&mockService{}), "not-json", "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if e := decodeError(t, w); e.Code != http.StatusBadRequest {
		t.Fatalf("error=%+v", e)
	}
}

func TestChatSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing messages": `{"model":"x"}`,
		"empty messages":   `{"messages":[]}`,
		"bad role":         `{"messages":[{"role":"robot","content":"hi"}]}`,
		"content type":     `{"messages":[{"role":"user","content":5}]}`,
		"negative tokens":  `{"messages":[{"role":"user","content":"hi"}],"max_tokens":-1}`,
		"temperature":      `{"messages":[{"role":"user","content":"hi"}],"temperature":3}`,
		"top_p zero":       `{"messages":[{"role":"user","content":"hi"}],"top_p":0}`,
	}
	for name, body := range cases {
		w := postChat(NewMux(&mockService{}), body, "application/json")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d body=%s", name, w.Code, w.Body.String())
		}
	}
}

func TestChatHTTPErrorMapping(t *testing.T) {
	svc := &mockService{chatErr: mockHTTPError{msg: "too busy", code: http.StatusTooManyRequests}}
	w := postChat(NewMux(svc), helloBody, "application/json")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestChatGenericErrorMaps500(t *testing.T) {
	svc := &mockService{chatErr: io.EOF}
	w := postChat(NewMux(svc), helloBody, "application/json")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestChatUnsupportedMediaType(t *testing.T) {
	w := postChat(NewMux(&mockService{}), helloBody, "text/plain")
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", w.Code)
	}
	w = postChat(NewMux(&mockService{}), helloBody, "")
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("missing content-type status=%d", w.Code)
	}
}

func TestChatBodyTooLarge(t *testing.T) {
	// Create >1MiB body
	big := make([]byte, (1<<20)+10)
	for i := range big {
		big[i] = 'a'
	}
	w := postChat(NewMux(&mockService{}), string(big), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too-large body, got %d", w.Code)
	}
	if e := decodeError(t, w); !strings.Contains(e.Error, "too large") {
		t.Fatalf("error=%+v", e)
	}
}

func TestHealthz(t *testing.T) {
	r := NewMux(&mockService{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}
