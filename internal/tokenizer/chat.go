package tokenizer

import (
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
)

// Turn markers of the chat format.
const (
	MarkSystem    = "[|system|]"
	MarkUser      = "[|user|]"
	MarkAssistant = "[|assistant|]"
	MarkEndOfTurn = "[|endofturn|]"
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

var roleMarks = map[string]string{
	"system":    MarkSystem,
	"user":      MarkUser,
	"assistant": MarkAssistant,
}

// RenderChat serializes messages into the turn-delimited prompt format. With
// addGenerationPrompt the result ends with an open assistant turn.
func RenderChat(msgs []Message, addGenerationPrompt bool) string {
	var sb strings.Builder
	for _, m := range msgs {
		mark, ok := roleMarks[m.Role]
		if !ok {
			mark = MarkUser
		}
		sb.WriteString(mark)
		sb.WriteString(m.Content)
		sb.WriteString(MarkEndOfTurn)
		sb.WriteByte('\n')
	}
	if addGenerationPrompt {
		sb.WriteString(MarkAssistant)
	}
	return sb.String()
}

// ChatSpecialTokens lists the markers a chat vocabulary must treat as atomic.
func ChatSpecialTokens() []string {
	return []string{MarkSystem, MarkUser, MarkAssistant, MarkEndOfTurn}
}

var controlToken = regexp2.MustCompile(`\[\|[A-Za-z_]+\|\]|<\|[^|<>]{1,32}\|>|</?s>`, regexp2.None)

// StripControl removes turn markers and control tokens that leaked into
// decoded text and trims surrounding whitespace.
func StripControl(s string) string {
	out, err := controlToken.Replace(s, "", -1, -1)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(out)
}

// partialControl matches text that is a proper prefix of some control token.
var partialControl = regexp2.MustCompile(`^(?:\[(?:\|[A-Za-z_]*\|?)?|<(?:\|[^|<>]{0,32}\|?|/?s?))\z`, regexp2.None)

// ControlFilter strips control tokens from text that arrives in pieces. The
// output of all Push calls followed by Flush joins to StripControl of the
// joined input. Text that may still become a marker is held back until the
// following piece decides it, and so is trailing whitespace.
//
// The zero value is ready to use.
type ControlFilter struct {
	raw     []rune
	space   string
	started bool
}

// Push consumes the next piece and returns the text that is now final.
func (f *ControlFilter) Push(s string) string {
	text := append(f.raw, []rune(s)...)
	var sb strings.Builder
	sb.WriteString(f.space)
	last := 0
	m, err := controlToken.FindRunesMatch(text)
	for m != nil && err == nil {
		sb.WriteString(string(text[last:m.Index]))
		last = m.Index + m.Length
		m, err = controlToken.FindNextMatch(m)
	}
	cut := last + partialStart(text[last:])
	sb.WriteString(string(text[last:cut]))
	f.raw = append([]rune(nil), text[cut:]...)
	return f.settle(sb.String())
}

// Flush returns whatever is still held back and resets the filter.
func (f *ControlFilter) Flush() string {
	out := f.space + string(f.raw)
	if !f.started {
		out = strings.TrimLeftFunc(out, unicode.IsSpace)
	}
	*f = ControlFilter{}
	return strings.TrimRightFunc(out, unicode.IsSpace)
}

func (f *ControlFilter) settle(out string) string {
	if !f.started {
		out = strings.TrimLeftFunc(out, unicode.IsSpace)
	}
	body := strings.TrimRightFunc(out, unicode.IsSpace)
	f.space = out[len(body):]
	if body != "" {
		f.started = true
	}
	return body
}

// partialStart returns the index of the first rune from which rs could still
// grow into a control token, or len(rs).
func partialStart(rs []rune) int {
	for i, r := range rs {
		if r != '[' && r != '<' {
			continue
		}
		if ok, _ := partialControl.MatchString(string(rs[i:])); ok {
			return i
		}
	}
	return len(rs)
}
