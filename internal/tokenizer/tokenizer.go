// Package tokenizer loads Hugging Face style tokenizer files. A fast
// tokenizer (tokenizer.json) is preferred; a slow, more permissive one
// (vocab.json) is used when the fast files are missing or unreadable.
package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File names inside a model directory.
const (
	FastFile   = "tokenizer.json"
	SlowFile   = "vocab.json"
	ConfigFile = "tokenizer_config.json"
)

// Kind tells which front end produced a Tokenizer.
type Kind string

const (
	KindFast Kind = "fast"
	KindSlow Kind = "slow"
)

// Tokenizer converts between text and token ids.
type Tokenizer struct {
	kind   Kind
	codec  *codec
	split  func(string) []string
	norm   func(string) string
	cfg    Config
	eos    int
	pad    int
	// FallbackReason records why the fast front end was not used.
	FallbackReason string
}

// Config is the subset of tokenizer_config.json we read.
type Config struct {
	ModelMaxLength float64         `json:"model_max_length"`
	EOSToken       json.RawMessage `json:"eos_token"`
	PadToken       json.RawMessage `json:"pad_token"`
	UnkToken       json.RawMessage `json:"unk_token"`
	AddedTokens    map[string]struct {
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens_decoder"`
}

// tokenString accepts both "tok" and {"content":"tok"}.
func tokenString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Content string `json:"content"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Content
	}
	return ""
}

func readConfig(dir string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", ConfigFile, err)
	}
	return cfg, nil
}

// Load opens the tokenizer in dir, fast first.
func Load(dir string) (*Tokenizer, error) {
	cfg, err := readConfig(dir)
	if err != nil {
		return nil, err
	}
	t, fastErr := LoadFast(dir, cfg)
	if fastErr == nil {
		return t, nil
	}
	t, slowErr := LoadSlow(dir, cfg)
	if slowErr != nil {
		return nil, fmt.Errorf("load tokenizer: fast: %v; slow: %w", fastErr, slowErr)
	}
	t.FallbackReason = fastErr.Error()
	return t, nil
}

func (t *Tokenizer) finish() {
	t.eos, t.pad = -1, -1
	if id, ok := t.TokenID(tokenString(t.cfg.EOSToken)); ok {
		t.eos = id
	}
	if id, ok := t.TokenID(tokenString(t.cfg.PadToken)); ok {
		t.pad = id
	}
}

// Kind reports fast or slow.
func (t *Tokenizer) Kind() Kind { return t.kind }

// Encode tokenizes text. Special token contents map to their ids.
func (t *Tokenizer) Encode(text string) []int {
	var ids []int
	t.codec.splitSpecial(text, func(seg string, special int) {
		if special >= 0 {
			ids = append(ids, special)
			return
		}
		if t.norm != nil {
			seg = t.norm(seg)
		}
		for _, p := range t.split(seg) {
			ids = t.codec.encodePiece(ids, p)
		}
	})
	return ids
}

// Decode turns ids back into text. The result may end in an incomplete
// UTF-8 sequence when ids stop in the middle of a character.
func (t *Tokenizer) Decode(ids []int, skipSpecial bool) string {
	return t.codec.decode(ids, skipSpecial)
}

func (t *Tokenizer) IsSpecial(id int) bool { return t.codec.special[id] }

// TokenID looks up the id of an exact vocabulary entry.
func (t *Tokenizer) TokenID(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	id, ok := t.codec.vocab[s]
	return id, ok
}

func (t *Tokenizer) VocabSize() int { return len(t.codec.tokens) }

// EOS returns the end-of-sequence id, or -1.
func (t *Tokenizer) EOS() int { return t.eos }

// Pad returns the padding id, or -1.
func (t *Tokenizer) Pad() int { return t.pad }

// SetPad sets the padding id.
func (t *Tokenizer) SetPad(id int) { t.pad = id }

// ModelMaxLength is the raw limit reported by the tokenizer config, 0 when
// absent. Values can be absurd (1e30 is common) and are not clamped here.
func (t *Tokenizer) ModelMaxLength() int {
	v := t.cfg.ModelMaxLength
	if v <= 0 {
		return 0
	}
	if v > float64(1<<62) {
		return 1 << 62
	}
	return int(v)
}
