package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/storeplane/storeplane/pkg/log"
	"github.com/storeplane/storeplane/pkg/metrics"
	"github.com/storeplane/storeplane/pkg/orchestrator"
	"github.com/storeplane/storeplane/pkg/quota"
	"github.com/storeplane/storeplane/pkg/storage"
	"github.com/storeplane/storeplane/pkg/types"
)

// createRetries bounds how often a create request is retried after losing
// a uniqueness race (duplicate idempotency key or id collision)
const createRetries = 3

// Config tunes the lifecycle engine
type Config struct {
	ChartPath              string
	DNSSuffix              string
	ProvisioningTimeout    time.Duration
	ReadinessCheckInterval time.Duration
	MaxReadinessChecks     int
}

// DeleteOutcome distinguishes the idempotent variants of a delete request
type DeleteOutcome string

const (
	// DeletionStarted means this request initiated the teardown
	DeletionStarted DeleteOutcome = "deletion_started"
	// DeletionInProgress means a previous request already started it
	DeletionInProgress DeleteOutcome = "deletion_in_progress"
	// AlreadyDeleted means teardown already completed
	AlreadyDeleted DeleteOutcome = "already_deleted"
)

// Engine drives the store lifecycle state machine. Handlers call it for
// the short transactional part of each operation; the long-running install,
// readiness watch, and uninstall run as background tasks.
type Engine struct {
	store  storage.Store
	orch   orchestrator.Client
	gate   *quota.Gate
	cfg    Config
	logger zerolog.Logger
	tasks  sync.WaitGroup
}

// NewEngine creates a lifecycle engine
func NewEngine(store storage.Store, orch orchestrator.Client, gate *quota.Gate, cfg Config) *Engine {
	return &Engine{
		store:  store,
		orch:   orch,
		gate:   gate,
		cfg:    cfg,
		logger: log.WithComponent("lifecycle"),
	}
}

// CreateStore admits a create request through the gate and, on admission,
// commits the new store in Provisioning and spawns the readiness watcher.
// replayed is true when the request matched a non-expired idempotency
// record; the returned store is then the original one. A *quota.Denial
// error carries the 429 detail.
func (e *Engine) CreateStore(ctx context.Context, tenantID, idemKey string) (store *types.Store, replayed bool, err error) {
	var lastErr error
	for attempt := 0; attempt < createRetries; attempt++ {
		now := time.Now()
		candidate := e.newStore(tenantID, now)

		tx, err := e.store.Begin(ctx)
		if err != nil {
			return nil, false, err
		}

		existing, denial, err := e.gate.Admit(ctx, tx, candidate, idemKey, now)
		if err != nil {
			_ = tx.Rollback()
			if errors.Is(err, storage.ErrConflict) {
				// Lost a race on the idempotency key or collided on
				// id/host; retry and observe the winner
				lastErr = err
				continue
			}
			return nil, false, err
		}
		if denial != nil {
			_ = tx.Rollback()
			return nil, false, denial
		}
		if err := tx.Commit(); err != nil {
			if isRetryable(err) {
				lastErr = err
				continue
			}
			return nil, false, err
		}

		if existing != nil {
			return existing, true, nil
		}

		metrics.LifecycleTransitions.WithLabelValues(string(types.StatusProvisioning)).Inc()
		e.tasks.Add(1)
		go e.provision(candidate)
		return candidate, false, nil
	}
	return nil, false, fmt.Errorf("create retries exhausted: %w", lastErr)
}

// GetStore returns a tenant's store by id
func (e *Engine) GetStore(ctx context.Context, id, tenantID string) (*types.Store, error) {
	return e.store.GetStore(ctx, id, tenantID)
}

// ListStores returns a tenant's non-deleted stores, newest first
func (e *Engine) ListStores(ctx context.Context, tenantID string) ([]*types.Store, error) {
	return e.store.ListStoresForTenant(ctx, tenantID)
}

// DeleteStore locks the store row and transitions it to Deleting, then
// spawns the asynchronous teardown. Deletes of stores already Deleting or
// Deleted are idempotent successes.
func (e *Engine) DeleteStore(ctx context.Context, id, tenantID string) (*types.Store, DeleteOutcome, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, "", err
	}

	s, err := tx.LockStore(ctx, id, tenantID)
	if err != nil {
		_ = tx.Rollback()
		return nil, "", err
	}

	switch s.Status {
	case types.StatusDeleted:
		_ = tx.Rollback()
		return s, AlreadyDeleted, nil
	case types.StatusDeleting:
		_ = tx.Rollback()
		return s, DeletionInProgress, nil
	}

	now := time.Now()
	if err := tx.MarkDeleting(ctx, id, now); err != nil {
		_ = tx.Rollback()
		return nil, "", err
	}
	if err := tx.Commit(); err != nil {
		return nil, "", err
	}

	s.Status = types.StatusDeleting
	s.FailureReason = nil
	s.DeletionStartedAt = types.NewTimestampPtr(now)

	metrics.LifecycleTransitions.WithLabelValues(string(types.StatusDeleting)).Inc()
	e.tasks.Add(1)
	go e.teardown(s)
	return s, DeletionStarted, nil
}

// Wait blocks until all background provisioning and teardown tasks finish.
// Used on shutdown and by tests.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

func (e *Engine) newStore(tenantID string, now time.Time) *types.Store {
	id := newStoreID()
	return &types.Store{
		ID:                    id,
		TenantID:              tenantID,
		Namespace:             id,
		Host:                  id + "." + e.cfg.DNSSuffix,
		Status:                types.StatusProvisioning,
		CreatedAt:             types.NewTimestamp(now),
		ProvisioningStartedAt: types.NewTimestampPtr(now),
	}
}

// newStoreID generates an identifier of the form store-<8 lowercase hex>
func newStoreID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("failed to generate store id: %v", err))
	}
	return "store-" + hex.EncodeToString(b)
}

func isRetryable(err error) bool {
	return errors.Is(err, storage.ErrConflict)
}
