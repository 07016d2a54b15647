/*
Package metrics defines Prometheus collectors for the control plane.

Collectors are package-level variables registered in init and incremented
directly by the gate, the lifecycle engine, the janitor, and the HTTP
surface. The handler is mounted on the API router at /metrics.
*/
package metrics
