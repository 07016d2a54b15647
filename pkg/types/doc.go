/*
Package types defines the core data structures shared across Storeplane.

A Store is a provisioned workload instance: a templated deployment plus its
sidecar database running in a dedicated namespace, reachable on a
per-instance host. The lifecycle is a small state machine:

	Provisioning ──▶ Ready
	      │            │
	      ▼            ▼
	   Failed ◀──── Deleting ──▶ Deleted (terminal)

Provisioning moves to Ready when the workload reports healthy, or to Failed
on install error, timeout, or check cap. A delete moves any non-terminal
state to Deleting, then to Deleted on successful teardown or Failed on
teardown error. Deleted is terminal.

Timestamps carry millisecond precision end to end via the Timestamp type,
which controls both the JSON wire format and equality semantics.
*/
package types
