package metrics

import (
	gate "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRegistryProvider implements RegistryProvider over a dedicated
// prometheus.Registry. Each host gets its own registry rather than the
// package-global default, so two hosts in one process (common in tests)
// never collide on metric registration, and the CLI can expose exactly this
// registry via promhttp.
type PrometheusRegistryProvider struct {
	registry *prometheus.Registry
}

var _ gate.RegistryProvider = (*PrometheusRegistryProvider)(nil)

func NewPrometheusRegistryProvider() *PrometheusRegistryProvider {
	return &PrometheusRegistryProvider{
		registry: prometheus.NewRegistry(),
	}
}

// Registry returns the registry the host's metrics are registered on.
func (p *PrometheusRegistryProvider) Registry() *prometheus.Registry {
	return p.registry
}
