// Package storagetest provides an in-memory storage.Store for tests.
//
// MemStore implements the full Store and Tx contracts over maps guarded by
// a mutex, including uniqueness conflicts, conditional status transitions,
// and buffered transaction semantics (writes apply on Commit). It exists
// only for tests; production replicas keep no state outside PostgreSQL.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/storeplane/storeplane/pkg/storage"
	"github.com/storeplane/storeplane/pkg/types"
)

type idemRecord struct {
	StoreID   string
	CreatedAt time.Time
}

type rateRecord struct {
	TenantID  string
	StoreID   string
	CreatedAt time.Time
}

// MemStore is an in-memory implementation of storage.Store
type MemStore struct {
	mu     sync.Mutex
	stores map[string]*types.Store
	idem   map[string]idemRecord
	rates  []rateRecord

	// Audits collects entries passed to Audit
	Audits []*types.AuditEntry

	// Calls records Tx method invocations in order, for asserting the
	// gate's fixed check ordering
	Calls []string

	// Error injection hooks; nil means normal behavior
	InsertStoreHook    func(*types.Store) error
	PutIdempotencyHook func(key string) error
	PingErr            error
	AuditErr           error
}

// NewMemStore returns an empty MemStore
func NewMemStore() *MemStore {
	return &MemStore{
		stores: make(map[string]*types.Store),
		idem:   make(map[string]idemRecord),
	}
}

// Seed inserts a store directly, bypassing transactions
func (m *MemStore) Seed(s *types.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.stores[s.ID] = &cp
}

// SeedIdempotency inserts an idempotency record directly
func (m *MemStore) SeedIdempotency(key, storeID string, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idem[key] = idemRecord{StoreID: storeID, CreatedAt: createdAt}
}

// SeedRate inserts a rate record directly
func (m *MemStore) SeedRate(tenantID, storeID string, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates = append(m.rates, rateRecord{TenantID: tenantID, StoreID: storeID, CreatedAt: createdAt})
}

// Snapshot returns a copy of the store with the given id, or nil
func (m *MemStore) Snapshot(id string) *types.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// RateCount returns the number of rate records for a tenant
func (m *MemStore) RateCount(tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rates {
		if r.TenantID == tenantID {
			n++
		}
	}
	return n
}

func (m *MemStore) record(call string) {
	m.Calls = append(m.Calls, call)
}

func (m *MemStore) Begin(ctx context.Context) (storage.Tx, error) {
	return &memTx{store: m}, nil
}

func (m *MemStore) GetStore(ctx context.Context, id, tenantID string) (*types.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[id]
	if !ok || s.TenantID != tenantID {
		return nil, storage.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemStore) ListStoresForTenant(ctx context.Context, tenantID string) ([]*types.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Store
	for _, s := range m.stores {
		if s.TenantID == tenantID && s.Status != types.StatusDeleted {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Time.After(out[j].CreatedAt.Time)
	})
	return out, nil
}

func (m *MemStore) UpdateStoreStatus(ctx context.Context, id string, from, to types.StoreStatus, failureReason *string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[id]
	if !ok || s.Status != from {
		return storage.ErrNotFound
	}
	s.Status = to
	s.FailureReason = failureReason
	switch to {
	case types.StatusReady:
		s.ReadyAt = types.NewTimestampPtr(at)
	case types.StatusDeleting:
		s.DeletionStartedAt = types.NewTimestampPtr(at)
	case types.StatusDeleted:
		s.DeletedAt = types.NewTimestampPtr(at)
	}
	return nil
}

func (m *MemStore) DeleteIdempotencyKeysBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, rec := range m.idem {
		if rec.CreatedAt.Before(cutoff) {
			delete(m.idem, k)
			n++
		}
	}
	return n, nil
}

func (m *MemStore) DeleteRateRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []rateRecord
	var n int64
	for _, r := range m.rates {
		if r.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.rates = kept
	return n, nil
}

func (m *MemStore) FailStrandedProvisioning(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.stores {
		if s.Status == types.StatusProvisioning &&
			s.ProvisioningStartedAt != nil &&
			s.ProvisioningStartedAt.Time.Before(cutoff) {
			s.Status = types.StatusFailed
			r := reason
			s.FailureReason = &r
			n++
		}
	}
	return n, nil
}

func (m *MemStore) CountStoresByStatus(ctx context.Context) (map[types.StoreStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[types.StoreStatus]int64)
	for _, s := range m.stores {
		counts[s.Status]++
	}
	return counts, nil
}

func (m *MemStore) Audit(ctx context.Context, entry *types.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AuditErr != nil {
		return m.AuditErr
	}
	m.Audits = append(m.Audits, entry)
	return nil
}

func (m *MemStore) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MemStore) Close() error {
	return nil
}

// memTx buffers writes and applies them on Commit, mirroring transaction
// semantics closely enough for gate retry tests
type memTx struct {
	store *MemStore

	pendingStores []*types.Store
	pendingIdem   map[string]idemRecord
	pendingRates  []rateRecord
	pendingDelete []pendingTransition

	done bool
}

type pendingTransition struct {
	id string
	at time.Time
}

func (t *memTx) InsertStore(ctx context.Context, s *types.Store) error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("InsertStore")

	if m.InsertStoreHook != nil {
		if err := m.InsertStoreHook(s); err != nil {
			return err
		}
	}
	for id, existing := range m.stores {
		if id == s.ID || existing.Host == s.Host {
			return fmt.Errorf("store %s: %w", s.ID, storage.ErrConflict)
		}
	}
	for _, p := range t.pendingStores {
		if p.ID == s.ID || p.Host == s.Host {
			return fmt.Errorf("store %s: %w", s.ID, storage.ErrConflict)
		}
	}
	cp := *s
	t.pendingStores = append(t.pendingStores, &cp)
	return nil
}

func (t *memTx) LockStore(ctx context.Context, id, tenantID string) (*types.Store, error) {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("LockStore")

	s, ok := m.stores[id]
	if !ok || s.TenantID != tenantID {
		return nil, storage.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (t *memTx) MarkDeleting(ctx context.Context, id string, at time.Time) error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("MarkDeleting")
	t.pendingDelete = append(t.pendingDelete, pendingTransition{id: id, at: at})
	return nil
}

func (t *memTx) LookupIdempotent(ctx context.Context, key string, notBefore time.Time) (*types.Store, error) {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("LookupIdempotent")

	rec, ok := m.idem[key]
	if !ok || rec.CreatedAt.Before(notBefore) {
		return nil, storage.ErrNotFound
	}
	s, ok := m.stores[rec.StoreID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (t *memTx) PutIdempotency(ctx context.Context, key, storeID string, now time.Time) error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("PutIdempotency")

	if m.PutIdempotencyHook != nil {
		if err := m.PutIdempotencyHook(key); err != nil {
			return err
		}
	}
	if _, ok := m.idem[key]; ok {
		return fmt.Errorf("idempotency key: %w", storage.ErrConflict)
	}
	if t.pendingIdem == nil {
		t.pendingIdem = make(map[string]idemRecord)
	}
	if _, ok := t.pendingIdem[key]; ok {
		return fmt.Errorf("idempotency key: %w", storage.ErrConflict)
	}
	t.pendingIdem[key] = idemRecord{StoreID: storeID, CreatedAt: now}
	return nil
}

func (t *memTx) CountGlobalActive(ctx context.Context) (int, error) {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CountGlobalActive")

	n := 0
	for _, s := range m.stores {
		if s.Status != types.StatusDeleted {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CountTenantActive(ctx context.Context, tenantID string) (int, error) {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CountTenantActive")

	n := 0
	for _, s := range m.stores {
		if s.TenantID == tenantID && s.Status != types.StatusDeleted {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CountRateWindow(ctx context.Context, tenantID string, since time.Time) (int, error) {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CountRateWindow")

	n := 0
	for _, r := range m.rates {
		if r.TenantID == tenantID && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) OldestRateInWindow(ctx context.Context, tenantID string, since time.Time) (time.Time, error) {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("OldestRateInWindow")

	var oldest time.Time
	for _, r := range m.rates {
		if r.TenantID != tenantID || r.CreatedAt.Before(since) {
			continue
		}
		if oldest.IsZero() || r.CreatedAt.Before(oldest) {
			oldest = r.CreatedAt
		}
	}
	if oldest.IsZero() {
		return time.Time{}, storage.ErrNotFound
	}
	return oldest, nil
}

func (t *memTx) InsertRate(ctx context.Context, tenantID, storeID string, now time.Time) error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("InsertRate")
	t.pendingRates = append(t.pendingRates, rateRecord{TenantID: tenantID, StoreID: storeID, CreatedAt: now})
	return nil
}

func (t *memTx) Commit() error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true

	for _, s := range t.pendingStores {
		m.stores[s.ID] = s
	}
	for k, rec := range t.pendingIdem {
		m.idem[k] = rec
	}
	m.rates = append(m.rates, t.pendingRates...)
	for _, d := range t.pendingDelete {
		if s, ok := m.stores[d.id]; ok {
			s.Status = types.StatusDeleting
			s.FailureReason = nil
			s.DeletionStartedAt = types.NewTimestampPtr(d.at)
		}
	}
	return nil
}

func (t *memTx) Rollback() error {
	t.done = true
	return nil
}
