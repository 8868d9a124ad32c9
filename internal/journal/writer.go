package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
)

// DefaultBuffer is the number of events a Writer queues before Hook blocks.
const DefaultBuffer = 1024

// maxBatch bounds the events written in one database transaction.
const maxBatch = 100

// Writer appends committed events from a background goroutine, so the
// ledger never waits on the database unless the queue is full.
type Writer struct {
	journal *Journal
	timeout time.Duration
	logger  *slog.Logger
	events  chan domain.Event
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewWriter creates a writer for j. Each append is bounded by timeout.
// Call Start before publishing events.
func NewWriter(j *Journal, buffer int, timeout time.Duration, logger *slog.Logger) *Writer {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		journal: j,
		timeout: timeout,
		logger:  logger,
		events:  make(chan domain.Event, buffer),
		done:    make(chan struct{}),
	}
}

// Hook queues ev for writing. Its signature matches state.Hook.
func (w *Writer) Hook(ev domain.Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.logger.Error("journal closed, event not recorded",
			slog.Uint64("seq", ev.Seq),
			slog.String("kind", string(ev.Kind)),
		)
		return
	}
	w.events <- ev
}

// Start launches the append loop.
func (w *Writer) Start() {
	go w.run()
}

// Close stops accepting events and waits until the queued ones are
// written.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.events)
	w.mu.Unlock()
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)
	for ev := range w.events {
		batch := []domain.Event{ev}
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-w.events:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		w.flush(batch)
	}
}

func (w *Writer) flush(batch []domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.journal.Append(ctx, batch...); err != nil {
		attrs := []any{
			slog.Uint64("first_seq", batch[0].Seq),
			slog.Uint64("last_seq", batch[len(batch)-1].Seq),
			slog.Int("events", len(batch)),
			slog.String("error", err.Error()),
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			attrs = append(attrs, slog.String("pq_code", string(pqErr.Code)))
		}
		w.logger.Error("journal append failed", attrs...)
	}
}
