/*
Package quota implements the admission gate on store creation.

The gate is a pure predicate over the persistence layer, executed under the
create transaction, in this fixed order:

 1. Idempotency replay — a non-expired record for the request's key
    returns the existing store verbatim and short-circuits.
 2. Global active cap — every store not in Deleted counts, including
    Failed ones, which occupy a slot until the tenant deletes them.
 3. Per-tenant active cap — same counting rule, scoped to the tenant.
 4. Per-tenant rate — successful creates inside a sliding one-hour window.
    Denials carry a Retry-After computed from the oldest record in the
    window, rounded up and never below one second.

On success the gate inserts the store, idempotency, and rate rows in the
same transaction. Concurrent creates racing on the same key or colliding on
quota are resolved at commit time: the loser's transaction fails on a
uniqueness violation, and the caller retries, observing the winner.
*/
package quota
