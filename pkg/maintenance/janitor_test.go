package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeplane/storeplane/pkg/lifecycle"
	"github.com/storeplane/storeplane/pkg/metrics"
	"github.com/storeplane/storeplane/pkg/storage/storagetest"
	"github.com/storeplane/storeplane/pkg/types"
)

func testJanitor(mem *storagetest.MemStore) *Janitor {
	return NewJanitor(mem, Config{
		Interval:            5 * time.Minute,
		IdempotencyWindow:   5 * time.Minute,
		ProvisioningTimeout: 300 * time.Second,
	})
}

func TestSweepExpiresIdempotencyKeys(t *testing.T) {
	mem := storagetest.NewMemStore()
	now := time.Now()
	mem.SeedIdempotency("stale", "store-00000001", now.Add(-10*time.Minute))
	mem.SeedIdempotency("fresh", "store-00000002", now.Add(-time.Minute))

	testJanitor(mem).Sweep()

	deleted, err := mem.DeleteIdempotencyKeysBefore(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted, "only the fresh key should remain after the sweep")
}

func TestSweepExpiresRateRecords(t *testing.T) {
	mem := storagetest.NewMemStore()
	now := time.Now()
	mem.SeedRate("acme", "store-00000001", now.Add(-2*time.Hour))
	mem.SeedRate("acme", "store-00000002", now.Add(-30*time.Minute))

	testJanitor(mem).Sweep()

	assert.Equal(t, 1, mem.RateCount("acme"), "record outside the hour window removed")
}

func TestSweepReapsStrandedProvisioning(t *testing.T) {
	mem := storagetest.NewMemStore()
	now := time.Now()

	// Stranded: Provisioning far past timeout plus the grace interval
	mem.Seed(&types.Store{
		ID:                    "store-00000001",
		TenantID:              "acme",
		Status:                types.StatusProvisioning,
		CreatedAt:             types.NewTimestamp(now.Add(-time.Hour)),
		ProvisioningStartedAt: types.NewTimestampPtr(now.Add(-time.Hour)),
	})
	// Recent: a live watcher may still be driving this one
	mem.Seed(&types.Store{
		ID:                    "store-00000002",
		TenantID:              "acme",
		Status:                types.StatusProvisioning,
		CreatedAt:             types.NewTimestamp(now.Add(-time.Minute)),
		ProvisioningStartedAt: types.NewTimestampPtr(now.Add(-time.Minute)),
	})
	// Ready stores are never touched
	mem.Seed(&types.Store{
		ID:        "store-00000003",
		TenantID:  "acme",
		Status:    types.StatusReady,
		CreatedAt: types.NewTimestamp(now.Add(-2 * time.Hour)),
	})

	testJanitor(mem).Sweep()

	reaped := mem.Snapshot("store-00000001")
	assert.Equal(t, types.StatusFailed, reaped.Status)
	require.NotNil(t, reaped.FailureReason)
	assert.Equal(t, lifecycle.ReasonProvisioningTimeout, *reaped.FailureReason)

	assert.Equal(t, types.StatusProvisioning, mem.Snapshot("store-00000002").Status)
	assert.Equal(t, types.StatusReady, mem.Snapshot("store-00000003").Status)
}

func TestSweepUpdatesStoreGauge(t *testing.T) {
	mem := storagetest.NewMemStore()
	mem.Seed(&types.Store{ID: "store-00000001", TenantID: "acme",
		Status: types.StatusReady, CreatedAt: types.Now()})
	mem.Seed(&types.Store{ID: "store-00000002", TenantID: "acme",
		Status: types.StatusReady, CreatedAt: types.Now()})
	mem.Seed(&types.Store{ID: "store-00000003", TenantID: "globex",
		Status: types.StatusFailed, CreatedAt: types.Now()})

	testJanitor(mem).Sweep()

	ready := testutil.ToFloat64(metrics.StoresByStatus.WithLabelValues(string(types.StatusReady)))
	failed := testutil.ToFloat64(metrics.StoresByStatus.WithLabelValues(string(types.StatusFailed)))
	deleting := testutil.ToFloat64(metrics.StoresByStatus.WithLabelValues(string(types.StatusDeleting)))
	assert.Equal(t, 2.0, ready)
	assert.Equal(t, 1.0, failed)
	assert.Equal(t, 0.0, deleting)
}

func TestStartStop(t *testing.T) {
	mem := storagetest.NewMemStore()
	j := NewJanitor(mem, Config{
		Interval:            10 * time.Millisecond,
		IdempotencyWindow:   5 * time.Minute,
		ProvisioningTimeout: 300 * time.Second,
	})

	j.Start()
	time.Sleep(30 * time.Millisecond)
	j.Stop()
}
