package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatd/pkg/types"
)

// ContentType of an SSE response.
const ContentType = "text/event-stream; charset=utf-8"

var doneFrame = []byte("data: [DONE]\n\n")

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Writer frames JSON events as server-sent events and flushes each one.
type Writer struct {
	w   io.Writer
	f   http.Flusher
	log *zerolog.Logger
}

// NewWriter prepares w for streaming and writes the SSE headers. log may be
// nil; at debug level every frame is also logged.
func NewWriter(w http.ResponseWriter, log *zerolog.Logger) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &Writer{w: w, f: f, log: log}, nil
}

// Event writes v as one data frame. Non-ASCII text is written as UTF-8.
func (sw *Writer) Event(v any) error {
	var buf bytes.Buffer
	buf.WriteString("data: ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode appends one newline; frames end with a blank line.
	buf.WriteByte('\n')
	return sw.write(buf.Bytes())
}

// Done writes the [DONE] sentinel.
func (sw *Writer) Done() error { return sw.write(doneFrame) }

// Error writes an error frame in the same shape as JSON error responses.
func (sw *Writer) Error(code int, msg string) error {
	return sw.Event(types.StreamError{Error: types.ErrorResponse{Error: msg, Code: code}})
}

func (sw *Writer) write(b []byte) error {
	if sw.log != nil && sw.log.GetLevel() <= zerolog.DebugLevel {
		sw.log.Debug().Bytes("frame", bytes.TrimSpace(b)).Msg("sse")
	}
	if _, err := sw.w.Write(b); err != nil {
		return err
	}
	sw.f.Flush()
	return nil
}

// State identifies one streaming response and tracks what was sent.
type State struct {
	ID           string
	Created      int64
	Model        string
	PromptTokens int
	Emitted      int
}

// NewState starts a stream for model with the given full-input token count.
func NewState(model string, promptTokens int) *State {
	return &State{
		ID:           "chatcmpl-" + uuid.NewString(),
		Created:      time.Now().Unix(),
		Model:        model,
		PromptTokens: promptTokens,
	}
}

func (s *State) chunk(delta types.ChunkDelta, finish *string) types.ChatCompletionChunk {
	return types.ChatCompletionChunk{
		ID:      s.ID,
		Object:  types.ObjectChatCompletionChunk,
		Created: s.Created,
		Model:   s.Model,
		Choices: []types.ChatCompletionChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

// Content builds a content delta chunk and counts it.
func (s *State) Content(text string) types.ChatCompletionChunk {
	s.Emitted++
	return s.chunk(types.ChunkDelta{Content: text}, nil)
}

// Final builds the terminal chunk with an empty delta.
func (s *State) Final(reason string) types.ChatCompletionChunk {
	return s.chunk(types.ChunkDelta{}, &reason)
}

// Usage builds the usage-only chunk sent when the client asked for it.
func (s *State) Usage(u types.Usage) types.ChatCompletionChunk {
	return types.ChatCompletionChunk{
		ID:      s.ID,
		Object:  types.ObjectChatCompletionChunk,
		Created: s.Created,
		Model:   s.Model,
		Choices: []types.ChatCompletionChunkChoice{},
		Usage:   &u,
	}
}
