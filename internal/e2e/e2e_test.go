package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"chatd/internal/backend"
	"chatd/internal/backend/native"
	"chatd/internal/manager"
	"chatd/internal/registry"
	"chatd/pkg/types"
)

const helloGreedy = `{"model":"lg-exaone","messages":[{"role":"user","content":"안녕"}],"max_tokens":8,"temperature":0}`

// TestE2E_ChatNonStream sends the canonical greeting and checks the OpenAI
// response shape and usage accounting.
func TestE2E_ChatNonStream(t *testing.T) {
	srv, _, _ := newLoadedServer(t, baseConfig(writeModel(t, native.TestModelOptions{})))

	resp, body := httpPostJSON(t, srv.URL+"/v1/chat/completions", []byte(helloGreedy))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var out types.ChatCompletionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Object != types.ObjectChatCompletion || !strings.HasPrefix(out.ID, "chatcmpl-") || out.Model != "lg-exaone" {
		t.Fatalf("unexpected envelope: %+v", out)
	}
	if len(out.Choices) != 1 || out.Choices[0].Message.Role != "assistant" || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		t.Fatalf("unexpected choices: %+v", out.Choices)
	}
	// the test model never emits end-of-turn, so the budget ends the answer
	if out.Choices[0].FinishReason != "length" {
		t.Fatalf("finish_reason=%q", out.Choices[0].FinishReason)
	}
	u := out.Usage
	if u.PromptTokens <= 0 || u.CompletionTokens <= 0 || u.TotalTokens != u.PromptTokens+u.CompletionTokens {
		t.Fatalf("usage=%+v", u)
	}
}

// TestE2E_StreamMatchesNonStream checks SSE framing and that the streamed
// deltas reassemble into the non-streamed answer.
func TestE2E_StreamMatchesNonStream(t *testing.T) {
	srv, _, c := newLoadedServer(t, baseConfig(writeModel(t, native.TestModelOptions{})))

	zero := 0.0
	n := 8
	req := types.ChatCompletionRequest{
		Messages:      []types.ChatMessage{{Role: "user", Content: "안녕"}},
		MaxTokens:     &n,
		Temperature:   &zero,
		StreamOptions: &types.StreamOptions{IncludeUsage: true},
	}
	want, err := c.CreateChatCompletion(context.Background(), req)
	if err != nil {
		t.Fatalf("non-stream: %v", err)
	}

	var (
		text   strings.Builder
		finish string
		usage  *types.Usage
		chunks int
	)
	err = c.StreamChatCompletion(context.Background(), req, func(ch types.ChatCompletionChunk) error {
		chunks++
		if ch.Object != types.ObjectChatCompletionChunk {
			t.Fatalf("object=%q", ch.Object)
		}
		if ch.Usage != nil {
			usage = ch.Usage
			return nil
		}
		text.WriteString(ch.Choices[0].Delta.Content)
		if fr := ch.Choices[0].FinishReason; fr != nil {
			finish = *fr
		}
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got := strings.TrimSpace(text.String()); got != want.Choices[0].Message.Content {
		t.Fatalf("stream text %q != %q", got, want.Choices[0].Message.Content)
	}
	if finish != want.Choices[0].FinishReason {
		t.Fatalf("finish %q != %q", finish, want.Choices[0].FinishReason)
	}
	if usage == nil || *usage != want.Usage {
		t.Fatalf("usage %+v != %+v", usage, want.Usage)
	}
	if chunks < 3 {
		t.Fatalf("expected content, final and usage chunks, got %d", chunks)
	}

	// raw framing
	body := strings.Replace(helloGreedy, `"temperature":0`, `"temperature":0,"stream":true`, 1)
	resp, raw := httpPostJSON(t, srv.URL+"/v1/chat/completions", []byte(body))
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("status=%d content-type=%q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.HasSuffix(string(raw), "data: [DONE]\n\n") {
		t.Fatalf("stream does not end with [DONE]: %q", raw)
	}
	// the prompt is never echoed
	if strings.Contains(string(raw), "[|user|]") || strings.Contains(string(raw), manager.DefaultSystemPrompt) {
		t.Fatalf("prompt leaked into stream: %q", raw)
	}
}

// TestE2E_LoadingReturns503 covers the window between process start and a
// ready session.
func TestE2E_LoadingReturns503(t *testing.T) {
	release := make(chan struct{})
	cfg := baseConfig(writeModel(t, native.TestModelOptions{}))
	cfg.Loaders = map[string]backend.Loader{
		registry.BackendNative: backend.LoaderFunc(func(path string, opts backend.LoadOptions) (backend.Model, error) {
			<-release
			return native.Loader{}.Load(path, opts)
		}),
	}
	srv, mgr, c := newServer(t, cfg)

	resp, body := httpPostJSON(t, srv.URL+"/v1/chat/completions", []byte(helloGreedy))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("before load: status=%d body=%s", resp.StatusCode, body)
	}

	done := make(chan error, 1)
	go func() { done <- mgr.Load(context.Background()) }()
	waitFor(t, "loading state", func() bool { return mgr.State() == manager.StateLoading })

	resp, body = httpPostJSON(t, srv.URL+"/v1/chat/completions", []byte(helloGreedy))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("while loading: status=%d body=%s", resp.StatusCode, body)
	}
	var e types.ErrorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Code != http.StatusServiceUnavailable {
		t.Fatalf("error body=%s", body)
	}
	h, err := c.Health(context.Background())
	if err != nil || h.ModelLoaded {
		t.Fatalf("health while loading: %+v err=%v", h, err)
	}
	if resp, _ := httpGet(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz while loading: %d", resp.StatusCode)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("load: %v", err)
	}
	resp, body = httpPostJSON(t, srv.URL+"/v1/chat/completions", []byte(helloGreedy))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("after load: status=%d body=%s", resp.StatusCode, body)
	}
	h, err = c.Health(context.Background())
	if err != nil || !h.ModelLoaded || h.ModelName != "lg-exaone" {
		t.Fatalf("health after load: %+v err=%v", h, err)
	}
}

// TestE2E_StatusAndModels reads the session report over HTTP.
func TestE2E_StatusAndModels(t *testing.T) {
	_, _, c := newLoadedServer(t, baseConfig(writeModel(t, native.TestModelOptions{})))

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != "ready" || st.Backend != registry.BackendNative || st.Device != "cpu" || st.MaxLength < 2048 {
		t.Fatalf("status=%+v", st)
	}
	if st.Quantization == nil || st.Quantization.Mode != "safe_layerwise" || st.Quantization.QuantizedLayers == 0 {
		t.Fatalf("quantization=%+v", st.Quantization)
	}

	models, err := c.Models(context.Background())
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if models.Object != "list" || len(models.Data) != 1 || models.Data[0].ID != "lg-exaone" {
		t.Fatalf("models=%+v", models)
	}
}

// TestE2E_InvalidRequests exercises the validation layers end to end.
func TestE2E_InvalidRequests(t *testing.T) {
	srv, _, _ := newLoadedServer(t, baseConfig(writeModel(t, native.TestModelOptions{})))
	cases := map[string]string{
		"schema":          `{"messages":[]}`,
		"no user message": `{"messages":[{"role":"system","content":"x"}]}`,
		"blank user":      `{"messages":[{"role":"user","content":"   "}]}`,
	}
	for name, body := range cases {
		resp, raw := httpPostJSON(t, srv.URL+"/v1/chat/completions", []byte(body))
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status=%d body=%s", name, resp.StatusCode, raw)
		}
	}
}
