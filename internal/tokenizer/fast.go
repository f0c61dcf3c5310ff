package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/unicode/norm"
)

// gpt2Split is the default pre-tokenizer pattern. The negative lookahead
// keeps trailing whitespace attached to the next word.
const gpt2Split = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

type fastFile struct {
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
	Normalizer *struct {
		Type string `json:"type"`
	} `json:"normalizer"`
	PreTokenizer *struct {
		Type    string `json:"type"`
		Pattern struct {
			Regex string `json:"Regex"`
		} `json:"pattern"`
	} `json:"pre_tokenizer"`
	Model struct {
		Type     string         `json:"type"`
		Vocab    map[string]int `json:"vocab"`
		UnkToken string         `json:"unk_token"`
	} `json:"model"`
}

// LoadFast reads dir/tokenizer.json.
func LoadFast(dir string, cfg Config) (*Tokenizer, error) {
	b, err := os.ReadFile(filepath.Join(dir, FastFile))
	if err != nil {
		return nil, err
	}
	var f fastFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", FastFile, err)
	}
	added := make(map[string]int, len(f.AddedTokens))
	special := make(map[string]bool)
	for _, a := range f.AddedTokens {
		added[a.Content] = a.ID
		if a.Special {
			special[a.Content] = true
		}
	}
	pattern := gpt2Split
	byteLevel := false
	if pt := f.PreTokenizer; pt != nil {
		switch pt.Type {
		case "Split":
			if pt.Pattern.Regex != "" {
				pattern = pt.Pattern.Regex
			}
		case "ByteLevel":
			byteLevel = true
		}
	}
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("%s: pre-tokenizer: %w", FastFile, err)
	}
	unk := f.Model.UnkToken
	if unk == "" {
		unk = tokenString(cfg.UnkToken)
	}
	c, err := newCodec(f.Model.Vocab, added, special, unk, byteLevel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FastFile, err)
	}
	t := &Tokenizer{kind: KindFast, codec: c, cfg: cfg, split: regexSplitter(re)}
	if f.Normalizer != nil && f.Normalizer.Type == "NFC" {
		t.norm = norm.NFC.String
	}
	t.finish()
	return t, nil
}

func regexSplitter(re *regexp2.Regexp) func(string) []string {
	return func(s string) []string {
		var out []string
		m, err := re.FindStringMatch(s)
		for err == nil && m != nil {
			out = append(out, m.String())
			m, err = re.FindNextMatch(m)
		}
		if len(out) == 0 && s != "" {
			out = append(out, s)
		}
		return out
	}
}
