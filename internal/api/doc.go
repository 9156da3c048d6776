// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/postal-codes/resolve?commune=&street=&number= to resolve an address.
//   - GET /v1/postal-codes/{code} to list the known addresses of a postal code.
package api
