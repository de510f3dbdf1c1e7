// Package api hosts the operator HTTP server for a running link-mapping run.
// Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for dispatcher state, counters and handler bindings.
//   - GET /v1/routes for the compiled routing table.
package api
