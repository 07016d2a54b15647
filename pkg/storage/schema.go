package storage

// Schema is idempotent: table creation is conditional and indices are
// declared, so every replica can run it at startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS stores (
		id                      TEXT PRIMARY KEY,
		tenant_id               TEXT NOT NULL,
		namespace               TEXT NOT NULL,
		host                    TEXT NOT NULL,
		status                  TEXT NOT NULL,
		failure_reason          TEXT,
		created_at              TIMESTAMPTZ NOT NULL,
		provisioning_started_at TIMESTAMPTZ,
		ready_at                TIMESTAMPTZ,
		deletion_started_at     TIMESTAMPTZ,
		deleted_at              TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_stores_host ON stores (host)`,
	`CREATE INDEX IF NOT EXISTS idx_stores_tenant_status ON stores (tenant_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_stores_status_started ON stores (status, provisioning_started_at)`,

	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		key        TEXT PRIMARY KEY,
		store_id   TEXT NOT NULL REFERENCES stores (id),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_idempotency_created ON idempotency_keys (created_at)`,

	`CREATE TABLE IF NOT EXISTS rate_limits (
		id         BIGSERIAL PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		store_id   TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rate_tenant_created ON rate_limits (tenant_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS audit_logs (
		id            BIGSERIAL PRIMARY KEY,
		tenant_id     TEXT NOT NULL,
		action        TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id   TEXT,
		status        TEXT NOT NULL,
		details       JSONB,
		ip_address    TEXT,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_logs (created_at)`,
}
