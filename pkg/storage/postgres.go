package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/storeplane/storeplane/pkg/log"
	"github.com/storeplane/storeplane/pkg/types"
)

const storeColumns = `id, tenant_id, namespace, host, status, failure_reason,
	created_at, provisioning_started_at, ready_at, deletion_started_at, deleted_at`

// PostgresStore implements Store backed by PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// Open connects to PostgreSQL and verifies the connection
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{
		db:     sqlx.NewDb(db, "pgx"),
		logger: log.WithComponent("storage"),
	}, nil
}

// NewPostgresStore wraps an existing connection. Used by tests with sqlmock.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log.WithComponent("storage"),
	}
}

// InitSchema creates tables and indices if they do not exist
func (p *PostgresStore) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Begin opens a read-committed transaction
func (p *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

func (p *PostgresStore) GetStore(ctx context.Context, id, tenantID string) (*types.Store, error) {
	return getStore(ctx, p.db, id, tenantID)
}

func (p *PostgresStore) ListStoresForTenant(ctx context.Context, tenantID string) ([]*types.Store, error) {
	var rows []storeRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT `+storeColumns+` FROM stores
		 WHERE tenant_id = $1 AND status <> $2
		 ORDER BY created_at DESC`,
		tenantID, types.StatusDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}

	stores := make([]*types.Store, len(rows))
	for i := range rows {
		stores[i] = rows[i].toStore()
	}
	return stores, nil
}

// UpdateStoreStatus performs a conditional transition. The WHERE clause on
// the source status encodes the state machine: a store that has moved on
// (e.g. into Deleting while the watcher was sleeping) is left untouched and
// ErrNotFound is returned.
func (p *PostgresStore) UpdateStoreStatus(ctx context.Context, id string, from, to types.StoreStatus, failureReason *string, at time.Time) error {
	var tsColumn string
	switch to {
	case types.StatusReady:
		tsColumn = "ready_at"
	case types.StatusDeleting:
		tsColumn = "deletion_started_at"
	case types.StatusDeleted:
		tsColumn = "deleted_at"
	}

	var res sql.Result
	var err error
	if tsColumn != "" {
		res, err = p.db.ExecContext(ctx,
			`UPDATE stores SET status = $1, failure_reason = $2, `+tsColumn+` = $3
			 WHERE id = $4 AND status = $5`,
			to, failureReason, at, id, from)
	} else {
		res, err = p.db.ExecContext(ctx,
			`UPDATE stores SET status = $1, failure_reason = $2
			 WHERE id = $3 AND status = $4`,
			to, failureReason, id, from)
	}
	if err != nil {
		return fmt.Errorf("failed to update store status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update store status: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) DeleteIdempotencyKeysBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete idempotency keys: %w", err)
	}
	return res.RowsAffected()
}

func (p *PostgresStore) DeleteRateRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rate records: %w", err)
	}
	return res.RowsAffected()
}

func (p *PostgresStore) FailStrandedProvisioning(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE stores SET status = $1, failure_reason = $2
		 WHERE status = $3 AND provisioning_started_at < $4`,
		types.StatusFailed, reason, types.StatusProvisioning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stranded stores: %w", err)
	}
	return res.RowsAffected()
}

func (p *PostgresStore) CountStoresByStatus(ctx context.Context) (map[types.StoreStatus]int64, error) {
	rows, err := p.db.QueryxContext(ctx,
		`SELECT status, COUNT(*) FROM stores GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count stores by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.StoreStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to count stores by status: %w", err)
		}
		counts[types.StoreStatus(status)] = n
	}
	return counts, rows.Err()
}

func (p *PostgresStore) Audit(ctx context.Context, entry *types.AuditEntry) error {
	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
	}

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO audit_logs (tenant_id, action, resource_type, resource_id, status, details, ip_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.TenantID, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.Status, details, entry.IPAddress, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// pgTx implements Tx over a sqlx transaction
type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) InsertStore(ctx context.Context, store *types.Store) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO stores (id, tenant_id, namespace, host, status, failure_reason,
			created_at, provisioning_started_at, ready_at, deletion_started_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		store.ID, store.TenantID, store.Namespace, store.Host, store.Status,
		store.FailureReason, store.CreatedAt.Time, tsArg(store.ProvisioningStartedAt),
		tsArg(store.ReadyAt), tsArg(store.DeletionStartedAt), tsArg(store.DeletedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("store %s: %w", store.ID, ErrConflict)
		}
		return fmt.Errorf("failed to insert store: %w", err)
	}
	return nil
}

func (t *pgTx) LockStore(ctx context.Context, id, tenantID string) (*types.Store, error) {
	var row storeRow
	err := t.tx.GetContext(ctx, &row,
		`SELECT `+storeColumns+` FROM stores
		 WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock store: %w", err)
	}
	return row.toStore(), nil
}

func (t *pgTx) MarkDeleting(ctx context.Context, id string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE stores SET status = $1, failure_reason = NULL, deletion_started_at = $2
		 WHERE id = $3`,
		types.StatusDeleting, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark store deleting: %w", err)
	}
	return nil
}

func (t *pgTx) LookupIdempotent(ctx context.Context, key string, notBefore time.Time) (*types.Store, error) {
	var row storeRow
	err := t.tx.GetContext(ctx, &row,
		`SELECT s.id, s.tenant_id, s.namespace, s.host, s.status, s.failure_reason,
			s.created_at, s.provisioning_started_at, s.ready_at, s.deletion_started_at, s.deleted_at
		 FROM stores s
		 JOIN idempotency_keys k ON k.store_id = s.id
		 WHERE k.key = $1 AND k.created_at >= $2`,
		key, notBefore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return row.toStore(), nil
}

func (t *pgTx) PutIdempotency(ctx context.Context, key, storeID string, now time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, store_id, created_at) VALUES ($1, $2, $3)`,
		key, storeID, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("idempotency key: %w", ErrConflict)
		}
		return fmt.Errorf("failed to insert idempotency key: %w", err)
	}
	return nil
}

func (t *pgTx) CountGlobalActive(ctx context.Context) (int, error) {
	var n int
	err := t.tx.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM stores WHERE status <> $1`, types.StatusDeleted)
	if err != nil {
		return 0, fmt.Errorf("failed to count active stores: %w", err)
	}
	return n, nil
}

func (t *pgTx) CountTenantActive(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := t.tx.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM stores WHERE tenant_id = $1 AND status <> $2`,
		tenantID, types.StatusDeleted)
	if err != nil {
		return 0, fmt.Errorf("failed to count tenant stores: %w", err)
	}
	return n, nil
}

func (t *pgTx) CountRateWindow(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := t.tx.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM rate_limits WHERE tenant_id = $1 AND created_at >= $2`,
		tenantID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count rate window: %w", err)
	}
	return n, nil
}

func (t *pgTx) OldestRateInWindow(ctx context.Context, tenantID string, since time.Time) (time.Time, error) {
	var oldest time.Time
	err := t.tx.GetContext(ctx, &oldest,
		`SELECT created_at FROM rate_limits
		 WHERE tenant_id = $1 AND created_at >= $2
		 ORDER BY created_at ASC LIMIT 1`,
		tenantID, since)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to find oldest rate record: %w", err)
	}
	return oldest, nil
}

func (t *pgTx) InsertRate(ctx context.Context, tenantID, storeID string, now time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO rate_limits (tenant_id, store_id, created_at) VALUES ($1, $2, $3)`,
		tenantID, storeID, now)
	if err != nil {
		return fmt.Errorf("failed to insert rate record: %w", err)
	}
	return nil
}

func (t *pgTx) Commit() error {
	return t.tx.Commit()
}

func (t *pgTx) Rollback() error {
	return t.tx.Rollback()
}

func getStore(ctx context.Context, q sqlx.QueryerContext, id, tenantID string) (*types.Store, error) {
	var row storeRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT `+storeColumns+` FROM stores WHERE id = $1 AND tenant_id = $2`,
		id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store: %w", err)
	}
	return row.toStore(), nil
}

// storeRow maps the stores table. Nullable columns scan through sql.Null
// types and convert in toStore.
type storeRow struct {
	ID                    string         `db:"id"`
	TenantID              string         `db:"tenant_id"`
	Namespace             string         `db:"namespace"`
	Host                  string         `db:"host"`
	Status                string         `db:"status"`
	FailureReason         sql.NullString `db:"failure_reason"`
	CreatedAt             time.Time      `db:"created_at"`
	ProvisioningStartedAt sql.NullTime   `db:"provisioning_started_at"`
	ReadyAt               sql.NullTime   `db:"ready_at"`
	DeletionStartedAt     sql.NullTime   `db:"deletion_started_at"`
	DeletedAt             sql.NullTime   `db:"deleted_at"`
}

func (r *storeRow) toStore() *types.Store {
	s := &types.Store{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Namespace: r.Namespace,
		Host:      r.Host,
		Status:    types.StoreStatus(r.Status),
		CreatedAt: types.NewTimestamp(r.CreatedAt),
	}
	if r.FailureReason.Valid {
		s.FailureReason = &r.FailureReason.String
	}
	if r.ProvisioningStartedAt.Valid {
		s.ProvisioningStartedAt = types.NewTimestampPtr(r.ProvisioningStartedAt.Time)
	}
	if r.ReadyAt.Valid {
		s.ReadyAt = types.NewTimestampPtr(r.ReadyAt.Time)
	}
	if r.DeletionStartedAt.Valid {
		s.DeletionStartedAt = types.NewTimestampPtr(r.DeletionStartedAt.Time)
	}
	if r.DeletedAt.Valid {
		s.DeletedAt = types.NewTimestampPtr(r.DeletedAt.Time)
	}
	return s
}

func tsArg(ts *types.Timestamp) any {
	if ts == nil {
		return nil
	}
	return ts.Time
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
