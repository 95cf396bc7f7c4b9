// Package metrics exposes Prometheus collectors for adapters,
// repositories and the task engine, plus a Timer helper and the HTTP
// handler serving the scrape endpoint.
package metrics
