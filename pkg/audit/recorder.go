package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/storeplane/storeplane/pkg/log"
	"github.com/storeplane/storeplane/pkg/metrics"
	"github.com/storeplane/storeplane/pkg/types"
)

// Sink persists audit entries. Satisfied by storage.Store.
type Sink interface {
	Audit(ctx context.Context, entry *types.AuditEntry) error
}

// writeTimeout bounds each sink write so a slow database cannot back the
// recorder up indefinitely
const writeTimeout = 5 * time.Second

// Recorder appends audit entries through a bounded channel. Record never
// blocks and never fails the request it describes: when the buffer is full
// the entry is dropped and counted. Consumers of the audit table accept
// at-most-once durability.
type Recorder struct {
	ch     chan *types.AuditEntry
	sink   Sink
	logger zerolog.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// NewRecorder creates a recorder with the given buffer size and starts its
// background writer
func NewRecorder(sink Sink, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		ch:     make(chan *types.AuditEntry, buffer),
		sink:   sink,
		logger: log.WithComponent("audit"),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an entry without blocking
func (r *Recorder) Record(entry *types.AuditEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	select {
	case r.ch <- entry:
	default:
		metrics.AuditDropped.Inc()
		r.logger.Warn().Str("action", entry.Action).Msg("audit buffer full, entry dropped")
	}
}

// Close stops accepting entries, flushes the buffer, and waits for the
// writer to finish
func (r *Recorder) Close() {
	r.stopOnce.Do(func() {
		close(r.ch)
	})
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for entry := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.sink.Audit(ctx, entry); err != nil {
			// Best effort only; failure never affects the request
			r.logger.Warn().Err(err).Str("action", entry.Action).Msg("failed to write audit entry")
		}
		cancel()
	}
}
