/*
Package config resolves control-plane configuration from defaults, an
optional YAML file, and environment variables, in that order.

Environment variables follow the deployment contract: DB_HOST, DB_PORT,
DB_NAME, DB_USER, DB_PASSWORD plus the tuning knobs MAX_STORES_GLOBAL,
MAX_STORES_PER_TENANT, MAX_STORES_PER_HOUR, PROVISIONING_TIMEOUT_MS,
READINESS_CHECK_INTERVAL_MS, MAX_READINESS_CHECKS and
IDEMPOTENCY_WINDOW_MS. Durations configured in milliseconds are converted
to time.Duration at load time.

The resolved struct is validated with go-playground/validator before use, so
a replica never starts with an unusable configuration.
*/
package config
