/*
Package audit records control-plane actions as fire-and-forget appends.

Entries flow through a bounded channel to a single background writer. The
enqueue path never blocks and never surfaces an error to the request being
audited; a full buffer drops the entry and bumps a counter. An audit entry
missing after a crash is tolerable by contract.
*/
package audit
