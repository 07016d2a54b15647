package storage

import (
	"context"
	"errors"
	"time"

	"github.com/storeplane/storeplane/pkg/types"
)

var (
	// ErrNotFound is returned when a requested row does not exist, or a
	// conditional status transition matched no row
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert violates a uniqueness
	// constraint (store id, host, or idempotency key)
	ErrConflict = errors.New("conflict")
)

// Store defines the interface for control-plane state storage.
// This is implemented by the PostgreSQL-backed store; all replicas are
// stateless in front of it.
type Store interface {
	// Begin opens a read-committed transaction for the create and
	// delete flows
	Begin(ctx context.Context) (Tx, error)

	// Stores
	GetStore(ctx context.Context, id, tenantID string) (*types.Store, error)
	ListStoresForTenant(ctx context.Context, tenantID string) ([]*types.Store, error)
	// UpdateStoreStatus transitions a store from one status to another,
	// setting failure_reason and the timestamp column implied by the
	// target status. Returns ErrNotFound when the store is no longer in
	// the expected source status.
	UpdateStoreStatus(ctx context.Context, id string, from, to types.StoreStatus, failureReason *string, at time.Time) error

	// Maintenance
	DeleteIdempotencyKeysBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteRateRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// FailStrandedProvisioning marks Provisioning stores whose watch
	// loop owner died before completing, identified by a
	// provisioning_started_at older than cutoff
	FailStrandedProvisioning(ctx context.Context, cutoff time.Time, reason string) (int64, error)
	// CountStoresByStatus reports the current store population per status
	CountStoresByStatus(ctx context.Context) (map[types.StoreStatus]int64, error)

	// Audit appends an audit entry. Best effort: callers swallow errors.
	Audit(ctx context.Context, entry *types.AuditEntry) error

	// Utility
	Ping(ctx context.Context) error
	Close() error
}

// Tx exposes the typed operations that must share one database transaction:
// the admission gate on the create path and the row-locked delete path.
type Tx interface {
	// InsertStore fails with ErrConflict if the id or host already exists
	InsertStore(ctx context.Context, store *types.Store) error
	// LockStore acquires a row lock (SELECT ... FOR UPDATE) so that
	// concurrent delete handlers cannot both start a teardown
	LockStore(ctx context.Context, id, tenantID string) (*types.Store, error)
	// MarkDeleting transitions the locked store to Deleting
	MarkDeleting(ctx context.Context, id string, at time.Time) error

	// Idempotency
	LookupIdempotent(ctx context.Context, key string, notBefore time.Time) (*types.Store, error)
	PutIdempotency(ctx context.Context, key, storeID string, now time.Time) error

	// Quota and rate
	CountGlobalActive(ctx context.Context) (int, error)
	CountTenantActive(ctx context.Context, tenantID string) (int, error)
	CountRateWindow(ctx context.Context, tenantID string, since time.Time) (int, error)
	// OldestRateInWindow returns ErrNotFound when the window is empty
	OldestRateInWindow(ctx context.Context, tenantID string, since time.Time) (time.Time, error)
	InsertRate(ctx context.Context, tenantID, storeID string, now time.Time) error

	Commit() error
	Rollback() error
}
