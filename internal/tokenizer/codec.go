package tokenizer

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// codec is the vocabulary shared by the fast and slow front ends: greedy
// longest-match lookup with byte fallback, plus atomic special tokens.
type codec struct {
	vocab       map[string]int
	tokens      []string
	special     map[int]bool
	specials    []string // special token contents, longest first
	byteIDs     [256]int
	byteOf      map[int]byte
	unk         int
	maxTokenLen int

	byteLevel bool
	b2u       [256]rune
	u2b       map[rune]byte
}

func newCodec(vocab map[string]int, added map[string]int, specialSet map[string]bool, unkToken string, byteLevel bool) (*codec, error) {
	if len(vocab) == 0 {
		return nil, fmt.Errorf("empty vocabulary")
	}
	c := &codec{
		vocab:     make(map[string]int, len(vocab)+len(added)),
		special:   make(map[int]bool),
		byteOf:    make(map[int]byte),
		unk:       -1,
		byteLevel: byteLevel,
	}
	maxID := -1
	for s, id := range vocab {
		c.vocab[s] = id
		maxID = max(maxID, id)
	}
	for s, id := range added {
		c.vocab[s] = id
		maxID = max(maxID, id)
		if specialSet[s] {
			c.special[id] = true
			c.specials = append(c.specials, s)
		}
	}
	sort.Slice(c.specials, func(i, j int) bool { return len(c.specials[i]) > len(c.specials[j]) })
	c.tokens = make([]string, maxID+1)
	for s, id := range c.vocab {
		if id < 0 {
			return nil, fmt.Errorf("negative token id %d for %q", id, s)
		}
		c.tokens[id] = s
		if !c.special[id] {
			c.maxTokenLen = max(c.maxTokenLen, len(s))
		}
	}
	for i := range c.byteIDs {
		c.byteIDs[i] = -1
	}
	for i := 0; i < 256; i++ {
		if id, ok := c.vocab[fmt.Sprintf("<0x%02X>", i)]; ok {
			c.byteIDs[i] = id
			c.byteOf[id] = byte(i)
		}
	}
	if id, ok := c.vocab[unkToken]; ok && unkToken != "" {
		c.unk = id
	}
	if byteLevel {
		c.b2u, c.u2b = bytesToUnicode()
	}
	return c, nil
}

// bytesToUnicode is the reversible byte to printable rune table used by
// byte-level BPE vocabularies.
func bytesToUnicode() ([256]rune, map[rune]byte) {
	var b2u [256]rune
	u2b := make(map[rune]byte, 256)
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	n := 0
	for b := 0; b < 256; b++ {
		r := rune(b)
		if !printable(b) {
			r = rune(256 + n)
			n++
		}
		b2u[b] = r
		u2b[r] = byte(b)
	}
	return b2u, u2b
}

// splitSpecial cuts text around special token contents.
func (c *codec) splitSpecial(text string, fn func(seg string, special int)) {
	for len(text) > 0 {
		best, bestAt := -1, len(text)
		var bestLen int
		for _, s := range c.specials {
			if i := strings.Index(text, s); i >= 0 && (i < bestAt || (i == bestAt && len(s) > bestLen)) {
				best, bestAt, bestLen = c.vocab[s], i, len(s)
			}
		}
		if best < 0 {
			fn(text, -1)
			return
		}
		if bestAt > 0 {
			fn(text[:bestAt], -1)
		}
		fn("", best)
		text = text[bestAt+bestLen:]
	}
}

// encodePiece appends the ids of one pre-tokenized piece.
func (c *codec) encodePiece(ids []int, piece string) []int {
	if c.byteLevel {
		var sb strings.Builder
		for i := 0; i < len(piece); i++ {
			sb.WriteRune(c.b2u[piece[i]])
		}
		piece = sb.String()
	}
	for i := 0; i < len(piece); {
		matched := false
		for j := min(len(piece), i+c.maxTokenLen); j > i; j-- {
			if id, ok := c.vocab[piece[i:j]]; ok && !c.special[id] {
				ids = append(ids, id)
				i = j
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if c.byteLevel {
			r, size := utf8.DecodeRuneInString(piece[i:])
			if b, ok := c.u2b[r]; ok && c.byteIDs[b] >= 0 {
				ids = append(ids, c.byteIDs[b])
			} else if c.unk >= 0 {
				ids = append(ids, c.unk)
			}
			i += size
			continue
		}
		if id := c.byteIDs[piece[i]]; id >= 0 {
			ids = append(ids, id)
		} else if c.unk >= 0 {
			ids = append(ids, c.unk)
		}
		i++
	}
	return ids
}

func (c *codec) decode(ids []int, skipSpecial bool) string {
	var buf []byte
	for _, id := range ids {
		if id < 0 || id >= len(c.tokens) {
			continue
		}
		if c.special[id] {
			if !skipSpecial {
				buf = append(buf, c.tokens[id]...)
			}
			continue
		}
		if b, ok := c.byteOf[id]; ok {
			buf = append(buf, b)
			continue
		}
		tok := c.tokens[id]
		if c.byteLevel {
			for _, r := range tok {
				if b, ok := c.u2b[r]; ok {
					buf = append(buf, b)
				} else {
					buf = utf8.AppendRune(buf, r)
				}
			}
			continue
		}
		buf = append(buf, tok...)
	}
	return string(buf)
}
