package manager

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"chatd/internal/backend"
	"chatd/internal/stream"
	"chatd/internal/tokenizer"
	"chatd/pkg/types"
)

// OpenStream starts the SSE response. It is called only after the request
// has been validated and admitted, so earlier failures can still be sent as
// plain JSON errors.
type OpenStream func() (*stream.Writer, error)

// StreamChatCompletion generates an answer for req and relays it as
// chat.completion.chunk events. Generation runs in a producer goroutine that
// echoes the prompt and then each new token into a bounded streamer; the
// consumer drops the first len(prompt) fragments and forwards the rest as
// they arrive, with control tokens filtered out. Errors after open are reported in-band as an SSE error frame
// and also returned.
func (m *Manager) StreamChatCompletion(ctx context.Context, req types.ChatCompletionRequest, open OpenStream) error {
	s, err := m.Session()
	if err != nil {
		return err
	}
	j, err := m.prepare(s, req)
	if err != nil {
		return err
	}
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return err
	}
	defer release()

	sw, err := open()
	if err != nil {
		return err
	}

	parent := ctx
	ctx, cancel := m.inferContext(ctx)
	defer cancel()

	start := time.Now()
	st := stream.NewState(j.model, len(j.ids))
	m.publish(EventGenerateStart, map[string]any{"stream": true, "prompt_tokens": len(j.ids), "max_new_tokens": j.opts.MaxNewTokens})

	g, gctx := errgroup.WithContext(ctx)
	src := stream.NewStreamer(gctx, s.Tokenizer, m.cfg.StreamBuffer)
	var out backend.Output
	g.Go(func() error {
		o, err := s.Model.Generate(gctx, j.ids, j.text, j.opts, src)
		out = o
		if err != nil {
			err = generationError{err: err}
		}
		_ = src.CloseWithError(err)
		return err
	})
	// raw keeps the answer as generated; clients only see it with control
	// tokens removed
	var raw strings.Builder
	var cf tokenizer.ControlFilter
	g.Go(func() error {
		_, err := stream.Relay(gctx, src, st.PromptTokens, func(frag string) error {
			raw.WriteString(frag)
			if vis := cf.Push(frag); vis != "" {
				return sw.Event(st.Content(vis))
			}
			return nil
		})
		return err
	})
	err = g.Wait()

	if err != nil {
		observeGeneration("stream", "error", time.Since(start).Seconds(), len(j.ids), st.Emitted)
		if parent.Err() != nil {
			// client gone or server stopping: nothing useful can be written
			m.log.Info().Err(parent.Err()).Int("emitted", st.Emitted).Msg("stream aborted")
			return parent.Err()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = context.DeadlineExceeded
			m.log.Warn().Dur("timeout", m.cfg.InferTimeout).Int("emitted", st.Emitted).Msg("stream timed out")
			_ = sw.Error(http.StatusGatewayTimeout, "generation timed out")
			return err
		}
		m.log.Error().Err(err).Int("emitted", st.Emitted).Msg("stream failed")
		_ = sw.Error(StatusCode(err), err.Error())
		return err
	}

	if vis := cf.Flush(); vis != "" {
		if err := sw.Event(st.Content(vis)); err != nil {
			return err
		}
	}
	final := m.finalText(raw.String())
	if m.needsFallback(raw.String()) {
		// nothing visible was produced; send the fallback so clients render
		// the same answer as the non-streaming endpoint
		if err := sw.Event(st.Content(final)); err != nil {
			return err
		}
	}
	if err := sw.Event(st.Final(finishReason(out))); err != nil {
		return err
	}
	u := usage(s, len(j.ids), final)
	if req.StreamOptions != nil && req.StreamOptions.IncludeUsage {
		if err := sw.Event(st.Usage(u)); err != nil {
			return err
		}
	}
	if err := sw.Done(); err != nil {
		return err
	}

	took := time.Since(start)
	m.generations.Add(1)
	observeGeneration("stream", "ok", took.Seconds(), u.PromptTokens, u.CompletionTokens)
	m.publish(EventGenerateDone, map[string]any{"stream": true, "completion_tokens": u.CompletionTokens, "chunks": st.Emitted})
	m.log.Info().
		Str("id", st.ID).
		Int("input_tokens", len(j.ids)).
		Int("chunks", st.Emitted).
		Str("finish_reason", finishReason(out)).
		Dur("took", took).
		Msg("stream done")
	return nil
}
