package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"unicode"
)

// LoadSlow reads dir/vocab.json with special tokens from the tokenizer
// config. It skips normalization and splits only at word starts.
func LoadSlow(dir string, cfg Config) (*Tokenizer, error) {
	b, err := os.ReadFile(filepath.Join(dir, SlowFile))
	if err != nil {
		return nil, err
	}
	var vocab map[string]int
	if err := json.Unmarshal(b, &vocab); err != nil {
		return nil, fmt.Errorf("%s: %w", SlowFile, err)
	}
	added := make(map[string]int)
	special := make(map[string]bool)
	for k, a := range cfg.AddedTokens {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("%s: added token id %q: %w", ConfigFile, k, err)
		}
		added[a.Content] = id
		if a.Special {
			special[a.Content] = true
		}
	}
	c, err := newCodec(vocab, added, special, tokenString(cfg.UnkToken), false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", SlowFile, err)
	}
	t := &Tokenizer{kind: KindSlow, codec: c, cfg: cfg, split: wordStarts}
	t.finish()
	return t, nil
}

// wordStarts splits before every space that precedes a non-space, so the
// space stays attached to the following word.
func wordStarts(s string) []string {
	var out []string
	start := 0
	prevSpace := true
	for i, r := range s {
		space := unicode.IsSpace(r)
		if i > 0 && space && !prevSpace {
			out = append(out, s[start:i])
			start = i
		}
		prevSpace = space
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
