/*
Package storage provides the PostgreSQL persistence layer for Storeplane.

The database is the single source of truth; all control-plane replicas are
stateless in front of it and coordinate exclusively through it. Four tables
hold all state:

	stores            provisioned workload instances and their lifecycle
	idempotency_keys  create-request replay records (bounded window)
	rate_limits       one row per successful create, for sliding-window math
	audit_logs        append-only record of control-plane actions

# Transactions

The create and delete flows span multiple rows and run under a single
read-committed transaction obtained from Store.Begin. The delete path locks
its store row with SELECT ... FOR UPDATE so two handlers cannot both start
a teardown. Uniqueness collisions (store id, host, idempotency key) surface
as ErrConflict and are resolved by the caller retrying, at which point the
losing request observes the winner's committed rows.

# State transitions

UpdateStoreStatus is conditional on the source status, which enforces the
lifecycle state machine at the database level: a Deleted store never
transitions again, and a watcher that lost a race with a delete request
finds zero rows affected instead of clobbering the Deleting status.

Schema creation is idempotent (CREATE TABLE IF NOT EXISTS plus declared
indices) and runs at replica startup; there is no schema versioning.
*/
package storage
