// Package observability provides the Prometheus metrics recorder used to
// instrument storage backends.
package observability

import (
	"errors"
	"fmt"
	"time"

	"github.com/GoCodeAlone/sessionarchive/objstore"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsConfig holds configuration for Metrics.
type MetricsConfig struct {
	Namespace string `yaml:"namespace" json:"namespace"`
	Subsystem string `yaml:"subsystem" json:"subsystem"`
	// Textfile, when set, is where WriteTextfile writes the registry for the
	// node exporter's textfile collector.
	Textfile string `yaml:"textfile" json:"textfile"`
}

// DefaultMetricsConfig returns the default configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Namespace: "sessionarchive"}
}

// Metrics records backend operations into its own Prometheus registry.
// It implements objstore.OperationRecorder.
type Metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Bytes             *prometheus.CounterVec
}

var _ objstore.OperationRecorder = (*Metrics)(nil)

// NewMetrics creates a Metrics with a fresh registry.
func NewMetrics(cfg MetricsConfig) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		config:   cfg,
		registry: reg,
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "backend_operations_total",
			Help:      "Total number of object storage operations",
		}, []string{"driver", "operation", "status"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "backend_operation_duration_seconds",
			Help:      "Duration of object storage operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"driver", "operation"}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "backend_bytes_total",
			Help:      "Total archive bytes transferred",
		}, []string{"driver", "direction"}),
	}
	reg.MustRegister(m.Operations, m.OperationDuration, m.Bytes)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveOperation records one completed operation.
func (m *Metrics) ObserveOperation(driver, operation string, err error, elapsed time.Duration) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, objstore.ErrObjectNotFound):
		status = "not_found"
	default:
		status = "error"
	}
	m.Operations.WithLabelValues(driver, operation, status).Inc()
	m.OperationDuration.WithLabelValues(driver, operation).Observe(elapsed.Seconds())
}

// AddBytes records transferred bytes.
func (m *Metrics) AddBytes(driver, direction string, n int64) {
	m.Bytes.WithLabelValues(driver, direction).Add(float64(n))
}

// WriteTextfile writes the registry to the configured textfile path.
// It is a no-op when no path is configured.
func (m *Metrics) WriteTextfile() error {
	if m.config.Textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.config.Textfile, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
