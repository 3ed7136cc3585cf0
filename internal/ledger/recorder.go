package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ytmusicdl/internal/logging"
)

const defaultRecorderBuffer = 256

// Recorder buffers events and writes them to a Store from one goroutine.
// Record never blocks; events are dropped with a warning when the buffer is
// full.
type Recorder struct {
	store  *Store
	logger *slog.Logger
	events chan Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRecorder starts the writer goroutine. Call Close to flush and stop it.
func NewRecorder(store *Store, logger *slog.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultRecorderBuffer
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Recorder{
		store:  store,
		logger: logging.NewComponentLogger(logger, "ledger"),
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues ev for writing.
func (r *Recorder) Record(ev Event) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("ledger buffer full; event dropped",
			logging.String(logging.FieldEventType, "ledger_drop"),
			logging.String("kind", string(ev.Kind)),
			logging.String(logging.FieldJobID, ev.JobID),
		)
	}
}

// Close flushes pending events and waits for the writer to stop.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.store.Append(ctx, ev); err != nil {
			logging.WarnWithContext(r.logger, "ledger write failed", "ledger_write_failed",
				logging.String("kind", string(ev.Kind)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check disk space and ledger.path permissions"),
			)
		}
		cancel()
	}
}
