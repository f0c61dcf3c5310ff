package manager

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"chatd/internal/backend"
	"chatd/internal/budget"
	"chatd/internal/tokenizer"
	"chatd/pkg/types"
)

var knownRoles = map[string]bool{"system": true, "user": true, "assistant": true}

// job is a validated request ready to run against a session.
type job struct {
	model    string
	messages []tokenizer.Message
	text     string
	ids      []int
	budget   budget.Budget
	opts     backend.GenerateOptions
}

// validateMessages enforces a non-empty list of known roles with at least
// one non-blank user turn.
func validateMessages(msgs []types.ChatMessage) error {
	if len(msgs) == 0 {
		return ErrInvalidRequest("messages must not be empty")
	}
	hasUser := false
	for i, msg := range msgs {
		if !knownRoles[msg.Role] {
			return ErrInvalidRequest(fmt.Sprintf("messages[%d]: unknown role %q", i, msg.Role))
		}
		if msg.Role == "user" && strings.TrimSpace(msg.Content) != "" {
			hasUser = true
		}
	}
	if !hasUser {
		return ErrInvalidRequest("at least one user message with content is required")
	}
	return nil
}

// withSystem prepends the default system instruction unless the caller
// supplied a system message.
func withSystem(msgs []types.ChatMessage, system string) []tokenizer.Message {
	out := make([]tokenizer.Message, 0, len(msgs)+1)
	injected := true
	for _, msg := range msgs {
		if msg.Role == "system" {
			injected = false
			break
		}
	}
	if injected {
		out = append(out, tokenizer.Message{Role: "system", Content: system})
	}
	for _, msg := range msgs {
		out = append(out, tokenizer.Message{Role: msg.Role, Content: msg.Content})
	}
	return out
}

// prepare validates req, renders and tokenizes the full prompt, and resolves
// the token budget and sampling options.
func (m *Manager) prepare(s *Session, req types.ChatCompletionRequest) (*job, error) {
	if err := validateMessages(req.Messages); err != nil {
		return nil, err
	}
	j := &job{model: req.Model}
	if j.model == "" {
		j.model = m.cfg.ModelName
	}
	j.messages = withSystem(req.Messages, m.cfg.DefaultSystemPrompt)
	j.text = tokenizer.RenderChat(j.messages, true)
	j.ids = s.Tokenizer.Encode(j.text)

	requested := m.cfg.DefaultMaxTokens
	if req.MaxTokens != nil {
		if *req.MaxTokens < 0 {
			return nil, ErrInvalidRequest("max_tokens must not be negative")
		}
		if *req.MaxTokens > 0 {
			requested = *req.MaxTokens
		}
	}
	b, err := budget.Resolve(s.Tokenizer.ModelMaxLength(), s.PositionLimit, len(j.ids), requested)
	if err != nil {
		return nil, budgetError{err: err}
	}
	j.budget = b

	sc := m.cfg.Sampling
	if req.Temperature != nil {
		if *req.Temperature < 0 || *req.Temperature > 2 {
			return nil, ErrInvalidRequest("temperature must be between 0 and 2")
		}
		sc.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		if *req.TopP <= 0 || *req.TopP > 1 {
			return nil, ErrInvalidRequest("top_p must be in (0, 1]")
		}
		sc.TopP = *req.TopP
	}
	if req.Seed != 0 {
		sc.Seed = req.Seed
	}
	j.opts = backend.GenerateOptions{
		MaxNewTokens: b.MaxNewTokens,
		Sampling:     sc,
		EOS:          s.Tokenizer.EOS(),
		Pad:          s.Tokenizer.Pad(),
	}
	return j, nil
}

// finalText strips control markers from the decoded answer and substitutes
// the fallback greeting when too little is left.
func (m *Manager) finalText(text string) string {
	if m.needsFallback(text) {
		return m.cfg.FallbackText
	}
	return tokenizer.StripControl(text)
}

func (m *Manager) needsFallback(text string) bool {
	return utf8.RuneCountInString(tokenizer.StripControl(text)) < m.cfg.MinResponseRunes
}

// usage counts prompt tokens as the full input and completion tokens by
// re-tokenizing the final text.
func usage(s *Session, promptTokens int, final string) types.Usage {
	c := len(s.Tokenizer.Encode(final))
	return types.Usage{PromptTokens: promptTokens, CompletionTokens: c, TotalTokens: promptTokens + c}
}

