package stream

import "context"

// Relay reads every fragment from src, drops the first skip of them (the
// echoed prompt), and passes the remaining non-empty fragments to emit in
// order. It returns the number of fragments passed on. A producer error or
// an emit error ends the relay.
func Relay(ctx context.Context, src *Streamer, skip int, emit func(string) error) (int, error) {
	seen, emitted := 0, 0
	for {
		frag, ok, err := src.Next(ctx)
		if !ok {
			return emitted, err
		}
		seen++
		if seen <= skip || frag == "" {
			continue
		}
		if err := emit(frag); err != nil {
			return emitted, err
		}
		emitted++
	}
}
