// Package api hosts the read-only HTTP surface consumed by the presentation
// layer. Routes:
//   - GET /healthz for liveness probes.
//   - GET /health for the {status, db, records} contract.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/channels and /v1/channels/{rank} for sorted, paginated reads.
//   - GET /v1/analytics for the market-structure report.
package api
