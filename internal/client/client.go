// Package client talks to a chatd server over its OpenAI compatible HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatd/pkg/types"
)

// DefaultTimeout bounds a whole request, including a streamed answer.
const DefaultTimeout = 5 * time.Minute

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL, e.g. http://localhost:8080.
// A zero timeout uses DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx answer or an in-band stream error.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatd: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == status
}

func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var e types.ErrorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (types.HealthResponse, error) {
	var h types.HealthResponse
	err := c.getJSON(ctx, "/health", &h)
	return h, err
}

// Models calls GET /v1/models.
func (c *Client) Models(ctx context.Context) (types.ModelList, error) {
	var m types.ModelList
	err := c.getJSON(ctx, "/v1/models", &m)
	return m, err
}

// Status calls GET /status.
func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var s types.StatusResponse
	err := c.getJSON(ctx, "/status", &s)
	return s, err
}

func (c *Client) postChat(ctx context.Context, req types.ChatCompletionRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}
	return resp, nil
}

// CreateChatCompletion requests a complete, non-streamed answer.
func (c *Client) CreateChatCompletion(ctx context.Context, req types.ChatCompletionRequest) (types.ChatCompletionResponse, error) {
	req.Stream = false
	var out types.ChatCompletionResponse
	resp, err := c.postChat(ctx, req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out, err
}

// streamFrame decodes either a chunk or an in-band error.
type streamFrame struct {
	types.ChatCompletionChunk
	Error *types.ErrorResponse `json:"error,omitempty"`
}

// StreamChatCompletion requests a streamed answer and calls onChunk for every
// chunk until [DONE]. An error frame ends the stream with an *APIError.
func (c *Client) StreamChatCompletion(ctx context.Context, req types.ChatCompletionRequest, onChunk func(types.ChatCompletionChunk) error) error {
	req.Stream = true
	resp, err := c.postChat(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}
		var f streamFrame
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			return fmt.Errorf("chatd: bad stream frame: %w", err)
		}
		if f.Error != nil {
			return &APIError{StatusCode: f.Error.Code, Message: f.Error.Error}
		}
		if onChunk != nil {
			if err := onChunk(f.ChatCompletionChunk); err != nil {
				return err
			}
		}
	}
}

// GenerateText sends prompt as a single user message and returns the answer.
func (c *Client) GenerateText(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	resp, err := c.CreateChatCompletion(ctx, types.ChatCompletionRequest{
		Messages:    []types.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chatd: response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
