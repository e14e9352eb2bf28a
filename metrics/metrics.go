// Package metrics provides Prometheus instrumentation for distributors and
// the instantiation factory. A nil *Metrics is a valid no-op recorder.
package metrics

import (
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace is used when New is given an empty namespace.
const DefaultNamespace = "splitpay"

// Asset labels.
const (
	AssetNative = "native"
	AssetToken  = "token"
)

// Metrics holds all Prometheus collectors of the library.
type Metrics struct {
	// Distribution metrics
	Distributions *prometheus.CounterVec
	Distributed   *prometheus.CounterVec
	Residual      *prometheus.CounterVec

	// Factory metrics
	Instantiations  prometheus.Counter
	RegistryEntries prometheus.Counter

	// Failure metrics
	Failures *prometheus.CounterVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		Distributions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "split",
			Name:      "distributions_total",
			Help:      "Total number of committed distributions",
		}, []string{"asset"}),
		Distributed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "split",
			Name:      "distributed_base_units_total",
			Help:      "Total base units transferred to receivers",
		}, []string{"asset"}),
		Residual: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "split",
			Name:      "residual_base_units_total",
			Help:      "Total base units left undistributed by integer division",
		}, []string{"asset"}),
		Instantiations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "factory",
			Name:      "instantiations_total",
			Help:      "Total number of distributors created by the factory",
		}),
		RegistryEntries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "factory",
			Name:      "registry_entries_total",
			Help:      "Total number of participant registry entries appended",
		}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failures_total",
			Help:      "Total number of failed operations by kind",
		}, []string{"op", "reason"}),
	}
}

// ObserveDistribution records one committed distribution.
func (m *Metrics) ObserveDistribution(asset string, distributed, residual *big.Int) {
	if m == nil {
		return
	}
	m.Distributions.WithLabelValues(asset).Inc()
	m.Distributed.WithLabelValues(asset).Add(toFloat(distributed))
	m.Residual.WithLabelValues(asset).Add(toFloat(residual))
}

// ObserveInstantiation records one created distributor and its registry entries.
func (m *Metrics) ObserveInstantiation(entries int) {
	if m == nil {
		return
	}
	m.Instantiations.Inc()
	m.RegistryEntries.Add(float64(entries))
}

// ObserveFailure records a failed operation.
func (m *Metrics) ObserveFailure(op, reason string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(op, reason).Inc()
}

// Handler returns an HTTP handler exposing the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func toFloat(v *big.Int) float64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
