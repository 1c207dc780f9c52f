// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/competitors/{competitor_id}/research to start a research run.
//   - GET /v1/competitors/{competitor_id}/research for the intel record.
package api
