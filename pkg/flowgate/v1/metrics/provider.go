package metrics

import "github.com/prometheus/client_golang/prometheus"

// RegistryProvider defines the interface for accessing the host's metrics
// registry. This allows consumers of the flowgate library to expose metrics
// via their chosen method (e.g., a Prometheus HTTP endpoint).
type RegistryProvider interface {
	// Registry returns the Prometheus registry containing host metrics.
	Registry() *prometheus.Registry
}
