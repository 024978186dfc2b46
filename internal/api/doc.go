// Package api hosts the read-only HTTP server consumed by the site build and
// operators. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/businesses with province, city, type, status, limit and offset
//     query parameters.
//   - GET /v1/businesses/{slug} for a single record.
//   - GET /v1/stats/provinces and /v1/stats/service-types for aggregates.
//   - GET /v1/runs for recent discovery runs when a run lister is wired.
package api
