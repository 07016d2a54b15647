package maintenance

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/storeplane/storeplane/pkg/lifecycle"
	"github.com/storeplane/storeplane/pkg/log"
	"github.com/storeplane/storeplane/pkg/metrics"
	"github.com/storeplane/storeplane/pkg/quota"
	"github.com/storeplane/storeplane/pkg/storage"
	"github.com/storeplane/storeplane/pkg/types"
)

// sweepTimeout bounds one full sweep against the database
const sweepTimeout = 30 * time.Second

// Config tunes the janitor
type Config struct {
	Interval            time.Duration
	IdempotencyWindow   time.Duration
	ProvisioningTimeout time.Duration
}

// Janitor periodically removes expired idempotency and rate records and
// reaps stores stranded in Provisioning by a dead replica. It never blocks
// request handling; transient database errors are logged and retried on
// the next tick.
type Janitor struct {
	store  storage.Store
	cfg    Config
	logger zerolog.Logger
	stopCh chan struct{}
}

// NewJanitor creates a janitor
func NewJanitor(store storage.Store, cfg Config) *Janitor {
	return &Janitor{
		store:  store,
		cfg:    cfg,
		logger: log.WithComponent("janitor"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the maintenance loop
func (j *Janitor) Start() {
	go j.run()
}

// Stop stops the janitor
func (j *Janitor) Stop() {
	close(j.stopCh)
}

func (j *Janitor) run() {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep()
		case <-j.stopCh:
			return
		}
	}
}

// Sweep performs one maintenance cycle
func (j *Janitor) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	now := time.Now()

	if n, err := j.store.DeleteIdempotencyKeysBefore(ctx, now.Add(-j.cfg.IdempotencyWindow)); err != nil {
		j.logger.Warn().Err(err).Msg("failed to expire idempotency keys")
	} else if n > 0 {
		metrics.JanitorDeleted.WithLabelValues("idempotency_keys").Add(float64(n))
		j.logger.Debug().Int64("deleted", n).Msg("expired idempotency keys")
	}

	if n, err := j.store.DeleteRateRecordsBefore(ctx, now.Add(-quota.RateWindow)); err != nil {
		j.logger.Warn().Err(err).Msg("failed to expire rate records")
	} else if n > 0 {
		metrics.JanitorDeleted.WithLabelValues("rate_limits").Add(float64(n))
		j.logger.Debug().Int64("deleted", n).Msg("expired rate records")
	}

	// Stores whose watch loop died with the replica. The grace of one
	// janitor interval keeps a live watcher that is about to fail the
	// store itself from racing with the reaper.
	cutoff := now.Add(-(j.cfg.ProvisioningTimeout + j.cfg.Interval))
	if n, err := j.store.FailStrandedProvisioning(ctx, cutoff, lifecycle.ReasonProvisioningTimeout); err != nil {
		j.logger.Warn().Err(err).Msg("failed to reap stranded stores")
	} else if n > 0 {
		metrics.JanitorReaped.Add(float64(n))
		j.logger.Info().Int64("reaped", n).Msg("reaped stranded provisioning stores")
	}

	if counts, err := j.store.CountStoresByStatus(ctx); err != nil {
		j.logger.Warn().Err(err).Msg("failed to count stores")
	} else {
		for _, status := range []types.StoreStatus{
			types.StatusProvisioning, types.StatusReady, types.StatusFailed,
			types.StatusDeleting, types.StatusDeleted,
		} {
			metrics.StoresByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
		}
	}
}
