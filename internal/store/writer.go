package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"modmail-bot/internal/clock"
	"modmail-bot/internal/ticket"
)

// DefaultFlushDelay is the quiet interval after the last Touch before a
// snapshot is written.
const DefaultFlushDelay = time.Second

// WriterOptions configures a Writer.
type WriterOptions struct {
	Delay  time.Duration
	Clock  clock.Clock
	Logger *slog.Logger
}

// Writer coalesces registry changes into snapshot saves. Touch arms a
// trailing-edge debounce; FlushSoon and Flush save right away.
type Writer struct {
	store  Snapshotter
	source func() ticket.Snapshot
	delay  time.Duration
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.Mutex
	timer  *clock.Timer
	armed  bool
	closed bool

	saveMu sync.Mutex
}

// NewWriter returns a Writer that saves source() into store.
func NewWriter(store Snapshotter, source func() ticket.Snapshot, opts WriterOptions) *Writer {
	if opts.Delay <= 0 {
		opts.Delay = DefaultFlushDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Writer{
		store:  store,
		source: source,
		delay:  opts.Delay,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
}

// Touch records that the registry changed.
func (w *Writer) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.armed = true
	if w.timer == nil {
		w.timer = w.clock.AfterFunc(w.delay, w.fire)
		return
	}
	w.timer.Reset(w.delay)
}

// FlushSoon saves immediately, folding in any pending debounced change.
func (w *Writer) FlushSoon() {
	if err := w.Flush(context.Background()); err != nil {
		w.logger.Error("snapshot flush failed", "error", err)
	}
}

// Flush cancels the pending debounce and saves now.
func (w *Writer) Flush(ctx context.Context) error {
	w.disarm()
	return w.save(ctx)
}

// Close flushes and ignores later Touch calls.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return w.Flush(ctx)
}

func (w *Writer) disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = false
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Writer) fire() {
	w.mu.Lock()
	armed := w.armed
	w.armed = false
	w.mu.Unlock()
	if !armed {
		return
	}

	if err := w.save(context.Background()); err != nil {
		w.logger.Error("debounced snapshot save failed", "error", err)
		// Keep the change pending so the next Touch or Flush retries it.
		w.mu.Lock()
		w.armed = true
		w.mu.Unlock()
	}
}

func (w *Writer) save(ctx context.Context) error {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()
	return w.store.Save(ctx, w.source())
}
