package httpapi

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrShuttingDown is the cancellation cause of in-flight requests when the
// base context ends.
var ErrShuttingDown = errors.New("server shutting down")

type ctxBox struct{ context.Context }

var serverBase atomic.Value // ctxBox

// SetBaseContext sets the process-level context whose end cancels every
// in-flight generation. nil resets it to Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBase.Store(ctxBox{ctx})
}

func baseContext() context.Context {
	if b, ok := serverBase.Load().(ctxBox); ok {
		return b.Context
	}
	return context.Background()
}

// joinContexts derives a handler context from req that is also cancelled,
// with cause ErrShuttingDown, when base is done. The returned func must be
// called when the handler ends.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(req)
	stop := context.AfterFunc(base, func() { cancel(ErrShuttingDown) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
