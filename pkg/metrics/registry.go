// Package metrics defines the metrics surface the index engine reports
// through, independent of the backing implementation. pkg/metrics/prometheus
// supplies the only implementation today; this package exists so
// pkg/mailindex never imports a concrete metrics backend directly.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection and installs reg as the
// collector registry implementations register against. Passing nil
// creates a fresh registry.
func InitRegistry(reg *prometheus.Registry) *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	registry = reg
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// GetRegistry returns the active registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Reset disables metrics and drops the registry. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	enabled = false
	registry = nil
}
