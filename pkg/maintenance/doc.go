/*
Package maintenance runs periodic housekeeping against the database.

Each tick the janitor deletes idempotency records older than the replay
window, rate records that have left the one-hour window, and marks
Provisioning stores abandoned by a dead replica as Failed. All three
operations are safe for multiple replicas to run concurrently: deletes are
cutoff-based and the reap is a conditional update.
*/
package maintenance
