package observability

import (
	"context"
	"log/slog"
)

// NonBlockingHandler is a slog.Handler that never blocks the calling
// goroutine: records are pushed onto a bounded channel with a non-blocking
// send, and a background goroutine drains the channel into an underlying
// handler. Resolves the diagnostics open question: a block's Step must
// never call fmt.Println/log.Print directly, only log through a handler
// like this one.
type NonBlockingHandler struct {
	next    slog.Handler
	records chan slog.Record
	dropped func()
}

// NewNonBlockingHandler wraps next, buffering up to capacity records before
// further records are dropped rather than blocking the producer. onDrop, if
// non-nil, is invoked once per dropped record.
func NewNonBlockingHandler(ctx context.Context, next slog.Handler, capacity int, onDrop func()) *NonBlockingHandler {
	if capacity <= 0 {
		capacity = 256
	}
	h := &NonBlockingHandler{
		next:    next,
		records: make(chan slog.Record, capacity),
		dropped: onDrop,
	}
	go h.drain(ctx)
	return h
}

// Enabled implements slog.Handler.
func (h *NonBlockingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler. It never blocks; a full buffer drops the
// record and invokes the drop hook.
func (h *NonBlockingHandler) Handle(_ context.Context, r slog.Record) error {
	select {
	case h.records <- r:
	default:
		if h.dropped != nil {
			h.dropped()
		}
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *NonBlockingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &NonBlockingHandler{next: h.next.WithAttrs(attrs), records: h.records, dropped: h.dropped}
}

// WithGroup implements slog.Handler.
func (h *NonBlockingHandler) WithGroup(name string) slog.Handler {
	return &NonBlockingHandler{next: h.next.WithGroup(name), records: h.records, dropped: h.dropped}
}

func (h *NonBlockingHandler) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-h.records:
			_ = h.next.Handle(ctx, r)
		}
	}
}
