package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeplane/storeplane/pkg/storage/storagetest"
	"github.com/storeplane/storeplane/pkg/types"
)

func testLimits() Limits {
	return Limits{
		GlobalActive:      100,
		TenantActive:      10,
		TenantHourly:      5,
		IdempotencyWindow: 5 * time.Minute,
	}
}

func candidate(id, tenant string, now time.Time) *types.Store {
	return &types.Store{
		ID:                    id,
		TenantID:              tenant,
		Namespace:             id,
		Host:                  id + ".stores.local",
		Status:                types.StatusProvisioning,
		CreatedAt:             types.NewTimestamp(now),
		ProvisioningStartedAt: types.NewTimestampPtr(now),
	}
}

func admit(t *testing.T, gate *Gate, mem *storagetest.MemStore, cand *types.Store, key string, now time.Time) (*types.Store, *Denial) {
	t.Helper()
	tx, err := mem.Begin(context.Background())
	require.NoError(t, err)

	existing, denial, err := gate.Admit(context.Background(), tx, cand, key, now)
	require.NoError(t, err)
	if existing != nil || denial != nil {
		require.NoError(t, tx.Rollback())
	} else {
		require.NoError(t, tx.Commit())
	}
	return existing, denial
}

func TestAdmitInsertsAllRecords(t *testing.T) {
	mem := storagetest.NewMemStore()
	gate := NewGate(testLimits())
	now := time.Now()

	existing, denial := admit(t, gate, mem, candidate("store-0000aaaa", "acme", now), "key-1", now)
	assert.Nil(t, existing)
	assert.Nil(t, denial)

	require.NotNil(t, mem.Snapshot("store-0000aaaa"))
	assert.Equal(t, types.StatusProvisioning, mem.Snapshot("store-0000aaaa").Status)
	assert.Equal(t, 1, mem.RateCount("acme"))
}

func TestAdmitCheckOrder(t *testing.T) {
	mem := storagetest.NewMemStore()
	gate := NewGate(testLimits())
	now := time.Now()

	admit(t, gate, mem, candidate("store-0000aaaa", "acme", now), "key-1", now)

	assert.Equal(t, []string{
		"LookupIdempotent",
		"CountGlobalActive",
		"CountTenantActive",
		"CountRateWindow",
		"InsertStore",
		"PutIdempotency",
		"InsertRate",
	}, mem.Calls)
}

func TestReplayShortCircuits(t *testing.T) {
	mem := storagetest.NewMemStore()
	gate := NewGate(testLimits())
	now := time.Now()

	orig := candidate("store-0000aaaa", "acme", now.Add(-time.Minute))
	mem.Seed(orig)
	mem.SeedIdempotency("key-1", orig.ID, now.Add(-time.Minute))

	existing, denial := admit(t, gate, mem, candidate("store-0000bbbb", "acme", now), "key-1", now)
	require.NotNil(t, existing)
	assert.Nil(t, denial)
	assert.Equal(t, orig.ID, existing.ID)

	// replay never consumes quota or rate budget
	assert.Equal(t, []string{"LookupIdempotent"}, mem.Calls)
	assert.Equal(t, 0, mem.RateCount("acme"))
	assert.Nil(t, mem.Snapshot("store-0000bbbb"))
}

func TestExpiredIdempotencyKeyIsIgnored(t *testing.T) {
	mem := storagetest.NewMemStore()
	gate := NewGate(testLimits())
	now := time.Now()

	orig := candidate("store-0000aaaa", "acme", now.Add(-time.Hour))
	mem.Seed(orig)
	mem.SeedIdempotency("key-1", orig.ID, now.Add(-time.Hour))

	// The stale record still occupies the key, so the fresh insert conflicts;
	// the caller's retry loop handles that. Here the key differs to focus on
	// the expiry check alone.
	existing, denial := admit(t, gate, mem, candidate("store-0000bbbb", "acme", now), "key-2", now)
	assert.Nil(t, existing)
	assert.Nil(t, denial)
	require.NotNil(t, mem.Snapshot("store-0000bbbb"))
}

func TestGlobalQuotaDenied(t *testing.T) {
	limits := testLimits()
	limits.GlobalActive = 2
	mem := storagetest.NewMemStore()
	gate := NewGate(limits)
	now := time.Now()

	mem.Seed(candidate("store-0000aaaa", "acme", now))
	mem.Seed(candidate("store-0000bbbb", "globex", now))

	existing, denial := admit(t, gate, mem, candidate("store-0000cccc", "initech", now), "key-1", now)
	assert.Nil(t, existing)
	require.NotNil(t, denial)
	assert.Equal(t, ReasonGlobalQuota, denial.Reason)
	assert.Zero(t, denial.RetryAfter)
	assert.Nil(t, mem.Snapshot("store-0000cccc"))
}

func TestDeletedStoresDoNotCountAgainstQuota(t *testing.T) {
	limits := testLimits()
	limits.GlobalActive = 2
	mem := storagetest.NewMemStore()
	gate := NewGate(limits)
	now := time.Now()

	deleted := candidate("store-0000aaaa", "acme", now)
	deleted.Status = types.StatusDeleted
	mem.Seed(deleted)
	mem.Seed(candidate("store-0000bbbb", "globex", now))

	_, denial := admit(t, gate, mem, candidate("store-0000cccc", "initech", now), "key-1", now)
	assert.Nil(t, denial)
}

func TestFailedStoresCountAgainstQuota(t *testing.T) {
	limits := testLimits()
	limits.TenantActive = 1
	mem := storagetest.NewMemStore()
	gate := NewGate(limits)
	now := time.Now()

	failed := candidate("store-0000aaaa", "acme", now)
	failed.Status = types.StatusFailed
	mem.Seed(failed)

	_, denial := admit(t, gate, mem, candidate("store-0000bbbb", "acme", now), "key-1", now)
	require.NotNil(t, denial)
	assert.Equal(t, ReasonTenantQuota, denial.Reason)
}

func TestTenantQuotaDenied(t *testing.T) {
	limits := testLimits()
	limits.TenantActive = 1
	mem := storagetest.NewMemStore()
	gate := NewGate(limits)
	now := time.Now()

	mem.Seed(candidate("store-0000aaaa", "acme", now))

	existing, denial := admit(t, gate, mem, candidate("store-0000bbbb", "acme", now), "key-1", now)
	assert.Nil(t, existing)
	require.NotNil(t, denial)
	assert.Equal(t, ReasonTenantQuota, denial.Reason)

	// other tenants are unaffected
	_, denial = admit(t, gate, mem, candidate("store-0000cccc", "globex", now), "key-2", now)
	assert.Nil(t, denial)
}

func TestRateLimitDenied(t *testing.T) {
	limits := testLimits()
	limits.TenantHourly = 2
	mem := storagetest.NewMemStore()
	gate := NewGate(limits)
	now := time.Now()

	// Rate records outlive their stores; no store rows needed here
	mem.SeedRate("acme", "store-0000aaaa", now.Add(-30*time.Minute))
	mem.SeedRate("acme", "store-0000bbbb", now.Add(-10*time.Minute))

	existing, denial := admit(t, gate, mem, candidate("store-0000cccc", "acme", now), "key-1", now)
	assert.Nil(t, existing)
	require.NotNil(t, denial)
	assert.Equal(t, ReasonRateLimited, denial.Reason)

	// oldest record leaves the window in 30 minutes
	assert.Equal(t, 30*time.Minute, denial.RetryAfter)
}

func TestRateLimitIgnoresRecordsOutsideWindow(t *testing.T) {
	limits := testLimits()
	limits.TenantHourly = 1
	mem := storagetest.NewMemStore()
	gate := NewGate(limits)
	now := time.Now()

	mem.SeedRate("acme", "store-0000aaaa", now.Add(-2*time.Hour))

	_, denial := admit(t, gate, mem, candidate("store-0000bbbb", "acme", now), "key-1", now)
	assert.Nil(t, denial)
}

func TestRetryAfterNeverBelowOneSecond(t *testing.T) {
	limits := testLimits()
	limits.TenantHourly = 1
	mem := storagetest.NewMemStore()
	gate := NewGate(limits)
	now := time.Now()

	// about to leave the window
	mem.SeedRate("acme", "store-0000aaaa", now.Add(-RateWindow).Add(100*time.Millisecond))

	_, denial := admit(t, gate, mem, candidate("store-0000bbbb", "acme", now), "key-1", now)
	require.NotNil(t, denial)
	assert.GreaterOrEqual(t, denial.RetryAfter, time.Second)
}

func TestDenialError(t *testing.T) {
	d := &Denial{Reason: ReasonRateLimited, Message: "rate limit of 5 stores per hour reached"}
	assert.Equal(t, "rate limit of 5 stores per hour reached", d.Error())
}
