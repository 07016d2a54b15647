/*
Package api exposes the control plane over HTTP.

Five routes, all JSON:

	POST   /stores        create a store (202; 200 on idempotent replay; 429 on quota/rate)
	GET    /stores        list the tenant's non-deleted stores
	GET    /stores/{id}   fetch one store (404 if not the tenant's)
	DELETE /stores/{id}   start teardown (idempotent 200)
	GET    /health        liveness plus database connectivity (503 on DB error)

/metrics serves Prometheus collectors.

Tenant identity comes from the X-Tenant-Id header (X-User-Id as fallback,
"default" when absent) and is trusted on input. The Idempotency-Key header
enables create replay within the configured window; requests without one
get a fresh key and therefore no replay protection.

Handlers respond after the short transactional write; long-running
orchestrator work happens in the lifecycle engine's background tasks.
Audit entries are recorded after the response through the fire-and-forget
recorder.
*/
package api
