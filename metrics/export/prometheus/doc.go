// Package prometheus exports goTrust engine metrics through
// prometheus/client_golang.
//
// Register a [Collector] on an existing registry, or use [Handler] for a
// standalone /metrics endpoint.
package prometheus
