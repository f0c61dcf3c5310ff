package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Special token contents written by Generate.
const (
	PadToken = "<pad>"
	UnkToken = "<unk>"
)

// DefaultWords seed the vocabulary of generated tokenizers.
var DefaultWords = []string{
	"안녕", "하세요", "무엇", "을", "도와", "드릴까요", "감사", "합니다", "네", "아니요",
	"API", "생성", "데이터", "응답", "요청", "필드", "타입", "JSON",
	"OpenAPI", "스펙", "경로", "메서드", "GET", "POST", "PUT", "DELETE",
	"성공", "오류", "검증", "설명", "예제", "값", "문자열", "숫자",
	"불린", "배열", "객체", "필수", "선택", "기본값", "형식", "구조",
	"Hello", "world", "the", "is", "a", "!", "?", ".", ",",
}

// GenerateOptions shape a generated tokenizer.
type GenerateOptions struct {
	Words []string
	// ModelMaxLength is written to the config; 0 omits it.
	ModelMaxLength int
	// SkipFast omits tokenizer.json so only the slow files exist.
	SkipFast bool
}

// Layout of a generated vocabulary.
const (
	GeneratedPadID   = 0
	GeneratedUnkID   = 1
	GeneratedEOSID   = 2
	FirstByteID      = 6
	FirstWordID      = FirstByteID + 256
)

// Generate writes a small byte-fallback tokenizer (fast and slow files plus
// config) to dir and returns the vocabulary size. The pad token is left
// unset in the config so loaders exercise the EOS default.
func Generate(dir string, opts GenerateOptions) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	words := opts.Words
	if words == nil {
		words = DefaultWords
	}
	specials := []string{PadToken, UnkToken, MarkEndOfTurn, MarkSystem, MarkUser, MarkAssistant}
	vocab := make(map[string]int)
	type added struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	}
	var addedTokens []added
	decoder := make(map[string]map[string]any)
	for i, s := range specials {
		vocab[s] = i
		addedTokens = append(addedTokens, added{ID: i, Content: s, Special: true})
		decoder[strconv.Itoa(i)] = map[string]any{"content": s, "special": true}
	}
	for b := 0; b < 256; b++ {
		vocab[fmt.Sprintf("<0x%02X>", b)] = FirstByteID + b
	}
	next := FirstWordID
	addWord := func(w string) {
		if _, ok := vocab[w]; !ok {
			vocab[w] = next
			next++
		}
	}
	for _, w := range words {
		addWord(w)
		addWord(" " + w)
	}

	fast := map[string]any{
		"version":      "1.0",
		"added_tokens": addedTokens,
		"normalizer":   map[string]any{"type": "NFC"},
		"pre_tokenizer": map[string]any{
			"type":    "Split",
			"pattern": map[string]any{"Regex": gpt2Split},
		},
		"model": map[string]any{
			"type":          "BPE",
			"vocab":         vocab,
			"unk_token":     UnkToken,
			"byte_fallback": true,
		},
	}
	cfg := map[string]any{
		"eos_token":            MarkEndOfTurn,
		"pad_token":            nil,
		"unk_token":            UnkToken,
		"added_tokens_decoder": decoder,
		"tokenizer_class":      "PreTrainedTokenizerFast",
	}
	if opts.ModelMaxLength > 0 {
		cfg["model_max_length"] = opts.ModelMaxLength
	}

	if !opts.SkipFast {
		if err := writeJSON(filepath.Join(dir, FastFile), fast); err != nil {
			return 0, err
		}
	}
	if err := writeJSON(filepath.Join(dir, SlowFile), vocab); err != nil {
		return 0, err
	}
	if err := writeJSON(filepath.Join(dir, ConfigFile), cfg); err != nil {
		return 0, err
	}
	return next, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
