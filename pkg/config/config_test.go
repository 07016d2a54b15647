package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 100, cfg.MaxStoresGlobal)
	assert.Equal(t, 10, cfg.MaxStoresPerTenant)
	assert.Equal(t, 5, cfg.MaxStoresPerHour)
	assert.Equal(t, 300*time.Second, cfg.ProvisioningTimeout)
	assert.Equal(t, 5*time.Second, cfg.ReadinessCheckInterval)
	assert.Equal(t, 60, cfg.MaxReadinessChecks)
	assert.Equal(t, 5*time.Minute, cfg.IdempotencyWindow)
	assert.Equal(t, "helm", cfg.HelmBin)
	assert.Equal(t, "kubectl", cfg.KubectlBin)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("MAX_STORES_GLOBAL", "250")
	t.Setenv("PROVISIONING_TIMEOUT_MS", "90000")
	t.Setenv("READINESS_CHECK_INTERVAL_MS", "2500")
	t.Setenv("ORCH_COMMAND_TIMEOUT_MS", "30000")
	t.Setenv("LISTEN_ADDR", ":9090")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, 5433, cfg.DBPort)
	assert.Equal(t, 250, cfg.MaxStoresGlobal)
	assert.Equal(t, 90*time.Second, cfg.ProvisioningTimeout)
	assert.Equal(t, 2500*time.Millisecond, cfg.ReadinessCheckInterval)
	assert.Equal(t, 30*time.Second, cfg.CommandTimeout)
	assert.Equal(t, ":9090", cfg.ListenAddr)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
db_host: pg.example.com
db_name: stores
max_stores_per_tenant: 3
dns_suffix: shops.example.com
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pg.example.com", cfg.DBHost)
	assert.Equal(t, "stores", cfg.DBName)
	assert.Equal(t, 3, cfg.MaxStoresPerTenant)
	assert.Equal(t, "shops.example.com", cfg.DNSSuffix)
	// untouched keys keep their defaults
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, 100, cfg.MaxStoresGlobal)
}

func TestEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_host: from-file\n"), 0o644))
	t.Setenv("DB_HOST", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.DBHost)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("MAX_STORES_GLOBAL", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadRejectsBadSSLMode(t *testing.T) {
	t.Setenv("DB_SSLMODE", "sideways")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	cfg := Default()
	cfg.DBHost = "pg"
	cfg.DBPassword = "hunter2"

	assert.Equal(t,
		"host=pg port=5432 dbname=storeplane user=storeplane password=hunter2 sslmode=disable",
		cfg.DSN())
}
