package manager

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chatd/internal/backend"
	"chatd/pkg/types"
)

// inferContext applies the optional generation timeout.
func (m *Manager) inferContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.InferTimeout > 0 {
		return context.WithTimeout(ctx, m.cfg.InferTimeout)
	}
	return context.WithCancel(ctx)
}

// decoded returns the generated text of out.
func decoded(s *Session, out backend.Output) string {
	if len(out.IDs) > 0 {
		return s.Tokenizer.Decode(out.IDs, true)
	}
	return out.Text
}

func finishReason(out backend.Output) string {
	if out.FinishReason == "" {
		return backend.FinishStop
	}
	return out.FinishReason
}

// ChatCompletion generates a complete answer for req.
func (m *Manager) ChatCompletion(ctx context.Context, req types.ChatCompletionRequest) (types.ChatCompletionResponse, error) {
	s, err := m.Session()
	if err != nil {
		return types.ChatCompletionResponse{}, err
	}
	j, err := m.prepare(s, req)
	if err != nil {
		return types.ChatCompletionResponse{}, err
	}
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return types.ChatCompletionResponse{}, err
	}
	defer release()

	ctx, cancel := m.inferContext(ctx)
	defer cancel()

	start := time.Now()
	m.publish(EventGenerateStart, map[string]any{"stream": false, "prompt_tokens": len(j.ids), "max_new_tokens": j.opts.MaxNewTokens})
	out, err := s.Model.Generate(ctx, j.ids, j.text, j.opts, nil)
	if err != nil {
		observeGeneration("sync", "error", time.Since(start).Seconds(), len(j.ids), 0)
		if ctx.Err() != nil {
			return types.ChatCompletionResponse{}, ctx.Err()
		}
		return types.ChatCompletionResponse{}, generationError{err: err}
	}
	text := m.finalText(decoded(s, out))
	u := usage(s, len(j.ids), text)
	took := time.Since(start)
	m.generations.Add(1)
	observeGeneration("sync", "ok", took.Seconds(), u.PromptTokens, u.CompletionTokens)
	m.publish(EventGenerateDone, map[string]any{"stream": false, "completion_tokens": u.CompletionTokens})
	m.log.Info().
		Int("input_tokens", len(j.ids)).
		Int("output_tokens", len(out.IDs)).
		Str("finish_reason", finishReason(out)).
		Dur("took", took).
		Msg("generation done")

	return types.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  types.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   j.model,
		Choices: []types.ChatCompletionChoice{{
			Index:        0,
			Message:      types.ChatMessage{Role: "assistant", Content: text},
			FinishReason: finishReason(out),
		}},
		Usage: u,
	}, nil
}
