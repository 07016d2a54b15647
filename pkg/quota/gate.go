package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/storeplane/storeplane/pkg/metrics"
	"github.com/storeplane/storeplane/pkg/storage"
	"github.com/storeplane/storeplane/pkg/types"
)

// RateWindow is the sliding window over which per-tenant creates are rated
const RateWindow = time.Hour

// Denial reasons surfaced to API clients
const (
	ReasonGlobalQuota = "global_quota_exceeded"
	ReasonTenantQuota = "tenant_quota_exceeded"
	ReasonRateLimited = "rate_limited"
)

// Limits configures the admission gate
type Limits struct {
	GlobalActive      int
	TenantActive      int
	TenantHourly      int
	IdempotencyWindow time.Duration
}

// Denial describes a rejected create request. RetryAfter is set only for
// rate-limited denials.
type Denial struct {
	Reason     string
	Message    string
	RetryAfter time.Duration
}

func (d *Denial) Error() string {
	return d.Message
}

// Gate is the synchronous admission predicate for store creation. It runs
// inside the caller's transaction so the checks and the row inserts commit
// atomically.
type Gate struct {
	limits Limits
}

// NewGate creates a gate with the given limits
func NewGate(limits Limits) *Gate {
	return &Gate{limits: limits}
}

// Admit applies the checks in fixed order: idempotency replay, global
// active cap, per-tenant active cap, per-tenant rate window. A replay
// short-circuits and never consumes quota or rate budget. On admission the
// candidate store, its idempotency record, and its rate record are all
// inserted under tx; the caller commits.
//
// Returns exactly one of: an existing store (replay), a denial, an error,
// or none of the three (admitted).
func (g *Gate) Admit(ctx context.Context, tx storage.Tx, candidate *types.Store, idemKey string, now time.Time) (*types.Store, *Denial, error) {
	existing, err := tx.LookupIdempotent(ctx, idemKey, now.Add(-g.limits.IdempotencyWindow))
	if err == nil {
		metrics.CreatesReplayed.Inc()
		return existing, nil, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, err
	}

	globalActive, err := tx.CountGlobalActive(ctx)
	if err != nil {
		return nil, nil, err
	}
	if globalActive >= g.limits.GlobalActive {
		metrics.CreatesDenied.WithLabelValues(ReasonGlobalQuota).Inc()
		return nil, &Denial{
			Reason:  ReasonGlobalQuota,
			Message: fmt.Sprintf("global store limit of %d reached", g.limits.GlobalActive),
		}, nil
	}

	tenantActive, err := tx.CountTenantActive(ctx, candidate.TenantID)
	if err != nil {
		return nil, nil, err
	}
	if tenantActive >= g.limits.TenantActive {
		metrics.CreatesDenied.WithLabelValues(ReasonTenantQuota).Inc()
		return nil, &Denial{
			Reason:  ReasonTenantQuota,
			Message: fmt.Sprintf("tenant store limit of %d reached", g.limits.TenantActive),
		}, nil
	}

	windowStart := now.Add(-RateWindow)
	inWindow, err := tx.CountRateWindow(ctx, candidate.TenantID, windowStart)
	if err != nil {
		return nil, nil, err
	}
	if inWindow >= g.limits.TenantHourly {
		retryAfter, err := g.retryAfter(ctx, tx, candidate.TenantID, windowStart, now)
		if err != nil {
			return nil, nil, err
		}
		metrics.CreatesDenied.WithLabelValues(ReasonRateLimited).Inc()
		return nil, &Denial{
			Reason:     ReasonRateLimited,
			Message:    fmt.Sprintf("rate limit of %d stores per hour reached", g.limits.TenantHourly),
			RetryAfter: retryAfter,
		}, nil
	}

	if err := tx.InsertStore(ctx, candidate); err != nil {
		return nil, nil, err
	}
	if err := tx.PutIdempotency(ctx, idemKey, candidate.ID, now); err != nil {
		return nil, nil, err
	}
	if err := tx.InsertRate(ctx, candidate.TenantID, candidate.ID, now); err != nil {
		return nil, nil, err
	}

	metrics.CreatesAdmitted.Inc()
	return nil, nil, nil
}

// retryAfter computes when the oldest record leaves the window, rounded up
// to whole seconds and never less than one second
func (g *Gate) retryAfter(ctx context.Context, tx storage.Tx, tenantID string, windowStart, now time.Time) (time.Duration, error) {
	oldest, err := tx.OldestRateInWindow(ctx, tenantID, windowStart)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Window emptied between the count and this read; tell the
			// client to retry shortly
			return time.Second, nil
		}
		return 0, err
	}

	seconds := math.Ceil(oldest.Add(RateWindow).Sub(now).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second, nil
}
