// Package stream turns decode output into an ordered sequence of text
// fragments and relays them to clients as server-sent events.
package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"chatd/internal/backend"
)

// DefaultBuffer is the fragment channel capacity.
const DefaultBuffer = 64

// ErrClosed is returned by Put* after Close.
var ErrClosed = errors.New("streamer closed")

// Decoder turns token ids back into text.
type Decoder interface {
	Decode(ids []int, skipSpecial bool) string
}

// Streamer is a backend.Sink that decodes incrementally. Every token id
// produces exactly one fragment, possibly empty: special tokens decode to
// nothing and the bytes of an incomplete trailing rune are held back until
// the rune completes. Invalid bytes never delay the text after them.
// Fragments are delivered in order through a bounded channel, so a slow
// consumer applies backpressure to the producer.
//
// Put* and Close are called from a single producer goroutine; Next from a
// single consumer.
type Streamer struct {
	ctx  context.Context
	dec  Decoder
	ch   chan string
	once sync.Once

	mu      sync.Mutex
	err     error
	closed  bool
	pending []int
	printed int
}

var _ backend.Sink = (*Streamer)(nil)

// NewStreamer returns a streamer whose Put* calls give up when ctx ends.
func NewStreamer(ctx context.Context, dec Decoder, buffer int) *Streamer {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Streamer{ctx: ctx, dec: dec, ch: make(chan string, buffer)}
}

// PutTokens decodes ids one at a time and emits a fragment for each.
func (s *Streamer) PutTokens(ids ...int) error {
	for _, id := range ids {
		if err := s.send(s.fragment(id)); err != nil {
			return err
		}
	}
	return nil
}

// PutText emits text as a single fragment, bypassing the decoder.
func (s *Streamer) PutText(text string) error {
	return s.send(text)
}

func (s *Streamer) fragment(id int) string {
	s.pending = append(s.pending, id)
	text := s.dec.Decode(s.pending, true)
	tail := text[s.printed:]
	switch {
	case strings.HasSuffix(text, "\n"):
		s.pending, s.printed = s.pending[:0], 0
		return strings.ToValidUTF8(tail, "�")
	default:
		// only the bytes of an unfinished last rune wait; anything invalid
		// before them is emitted as U+FFFD
		emit := tail[:len(tail)-incompleteSuffix(tail)]
		s.printed += len(emit)
		return strings.ToValidUTF8(emit, "�")
	}
}

// incompleteSuffix returns how many trailing bytes of s start a rune that is
// not complete yet.
func incompleteSuffix(s string) int {
	for i := 1; i < utf8.UTFMax && i <= len(s); i++ {
		if utf8.RuneStart(s[len(s)-i]) {
			if utf8.FullRuneInString(s[len(s)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}

func (s *Streamer) send(frag string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case s.ch <- frag:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Close flushes held-back bytes as a final fragment and ends the stream.
func (s *Streamer) Close() error {
	return s.CloseWithError(nil)
}

// CloseWithError ends the stream. A non-nil err is reported to the consumer
// after the fragments already queued.
func (s *Streamer) CloseWithError(err error) error {
	if err == nil && len(s.pending) > 0 {
		text := s.dec.Decode(s.pending, true)
		if s.printed < len(text) {
			if tail := strings.ToValidUTF8(text[s.printed:], "�"); tail != "" {
				if serr := s.send(tail); serr != nil {
					err = serr
				}
			}
		}
		s.pending, s.printed = nil, 0
	}
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.closed = true
		s.mu.Unlock()
		close(s.ch)
	})
	return nil
}

// Next returns the next fragment. ok is false once the stream has ended; err
// then holds the producer error, if any.
func (s *Streamer) Next(ctx context.Context) (frag string, ok bool, err error) {
	select {
	case f, open := <-s.ch:
		if open {
			return f, true, nil
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return "", false, s.err
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}
