package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/storeplane/storeplane/pkg/metrics"
	"github.com/storeplane/storeplane/pkg/storage"
	"github.com/storeplane/storeplane/pkg/types"
)

// Failure reasons recorded on the store row. The janitor reuses
// ReasonProvisioningTimeout when reaping stranded stores.
const (
	ReasonProvisioningTimeout = "Provisioning timeout exceeded"
	ReasonChecksExceeded      = "Maximum readiness checks exceeded"
)

// provision installs the release and runs the readiness watch loop until
// the store becomes Ready or a stop condition fails it. Runs detached from
// the request context: the HTTP response has already been sent.
func (e *Engine) provision(s *types.Store) {
	defer e.tasks.Done()

	ctx := context.Background()
	logger := e.logger.With().Str("store_id", s.ID).Str("tenant_id", s.TenantID).Logger()

	if err := e.orch.Install(ctx, s.ID, e.cfg.ChartPath, s.Namespace, s.Host); err != nil {
		logger.Error().Err(err).Msg("install failed")
		e.failProvisioning(ctx, s.ID, err.Error())
		return
	}
	logger.Info().Str("host", s.Host).Msg("install succeeded, watching readiness")

	start := time.Now()
	attempts := 0
	for {
		// Stop conditions, checked at the top of each attempt
		if time.Since(start) > e.cfg.ProvisioningTimeout {
			logger.Warn().Int("attempts", attempts).Msg("provisioning timed out")
			e.failProvisioning(ctx, s.ID, ReasonProvisioningTimeout)
			return
		}
		attempts++
		if attempts > e.cfg.MaxReadinessChecks {
			logger.Warn().Msg("readiness check cap exceeded")
			e.failProvisioning(ctx, s.ID, ReasonChecksExceeded)
			return
		}

		pods := e.orch.CheckPodReadiness(ctx, s.Namespace)
		if pods.Ready {
			ing := e.orch.CheckIngressReadiness(ctx, s.Host)
			if ing.Ready {
				metrics.ReadinessChecks.WithLabelValues("ready").Inc()
				e.markReady(ctx, s.ID)
				logger.Info().Int("attempts", attempts).Msg("store ready")
				return
			}
			metrics.ReadinessChecks.WithLabelValues("waiting").Inc()
			logger.Debug().Str("reason", ing.Reason).Msg("ingress not ready")
		} else {
			metrics.ReadinessChecks.WithLabelValues("waiting").Inc()
			logger.Debug().Str("reason", pods.Reason).Msg("pods not ready")
		}

		time.Sleep(e.cfg.ReadinessCheckInterval)
	}
}

// teardown uninstalls the release and commits the terminal state
func (e *Engine) teardown(s *types.Store) {
	defer e.tasks.Done()

	ctx := context.Background()
	logger := e.logger.With().Str("store_id", s.ID).Str("tenant_id", s.TenantID).Logger()

	if err := e.orch.Uninstall(ctx, s.ID, s.Namespace); err != nil {
		logger.Error().Err(err).Msg("uninstall failed")
		e.transition(ctx, s.ID, types.StatusDeleting, types.StatusFailed, strPtr("Deletion failed: "+err.Error()))
		return
	}

	e.transition(ctx, s.ID, types.StatusDeleting, types.StatusDeleted, nil)
	logger.Info().Msg("store deleted")
}

func (e *Engine) markReady(ctx context.Context, id string) {
	e.transition(ctx, id, types.StatusProvisioning, types.StatusReady, nil)
}

func (e *Engine) failProvisioning(ctx context.Context, id, reason string) {
	e.transition(ctx, id, types.StatusProvisioning, types.StatusFailed, &reason)
}

// transition applies a conditional status update. ErrNotFound means the
// store moved on concurrently (typically into Deleting), which is fine:
// the other transition wins.
func (e *Engine) transition(ctx context.Context, id string, from, to types.StoreStatus, reason *string) {
	err := e.store.UpdateStoreStatus(ctx, id, from, to, reason, time.Now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.logger.Debug().Str("store_id", id).
				Str("from", string(from)).Str("to", string(to)).
				Msg("transition skipped, store already moved on")
			return
		}
		e.logger.Error().Err(err).Str("store_id", id).
			Str("to", string(to)).Msg("failed to update store status")
		return
	}
	metrics.LifecycleTransitions.WithLabelValues(string(to)).Inc()
}

func strPtr(s string) *string {
	return &s
}
