/*
Package lifecycle drives the store state machine.

# Create path

After the quota gate admits a request inside the create transaction, the
handler already holds the committed Provisioning row and responds
202 Accepted. The engine then runs the rest asynchronously: install the
templated release, then poll readiness every ReadinessCheckInterval until
pods report Ready=True and the ingress has a load-balancer endpoint. Two
stop conditions bound the loop, a wall-clock timeout and an attempt cap;
whichever trips first records the corresponding failure reason. Transient
orchestrator errors only log and schedule another attempt.

# Delete path

The delete transaction locks the store row, so concurrent deletes serialize
on the database: the first moves the store to Deleting, later ones observe
that and return idempotent success. Teardown runs asynchronously and
commits Deleted or Failed.

# Crash recovery

A replica that dies mid-watch leaves its store in Provisioning. The
maintenance janitor reaps such rows once their provisioning_started_at is
older than the timeout, using the same failure reason the watcher would
have recorded. Status transitions are conditional updates, so a recovered
watcher and the janitor cannot both win.
*/
package lifecycle
