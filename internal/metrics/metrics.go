package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics exposes Prometheus collectors for asset persistence. A nil *Metrics
// records nothing.
type Metrics struct {
	conversions      *prometheus.CounterVec
	conversionTime   *prometheus.HistogramVec
	remoteOperations *prometheus.CounterVec
	records          *prometheus.CounterVec
}

// MustNew registers the collectors with reg, prometheus.DefaultRegisterer when
// nil. Registration errors panic.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "imagery",
				Name:      "conversions_total",
				Help:      "Variant conversions by variant and result.",
			},
			[]string{"variant", "result"},
		),
		conversionTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "imagery",
				Name:      "conversion_seconds",
				Help:      "Duration of a single variant conversion.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"variant"},
		),
		remoteOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "imagery",
				Name:      "remote_operations_total",
				Help:      "Remote store operations by operation and result.",
			},
			[]string{"op", "result"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "imagery",
				Name:      "record_operations_total",
				Help:      "Record saves and deletes by operation and result.",
			},
			[]string{"op", "result"},
		),
	}

	reg.MustRegister(m.conversions, m.conversionTime, m.remoteOperations, m.records)

	return m
}

func result(err error) string {
	if err != nil {
		return ResultError
	}

	return ResultOK
}

// Conversion records one variant conversion. Variants come from the configured
// sizes, request supplied namespaces and keys stay out of the label set.
func (m *Metrics) Conversion(variant string, took time.Duration, err error) {
	if m == nil {
		return
	}

	m.conversions.WithLabelValues(variant, result(err)).Inc()
	m.conversionTime.WithLabelValues(variant).Observe(took.Seconds())
}

func (m *Metrics) Remote(op string, err error) {
	if m == nil {
		return
	}

	m.remoteOperations.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) Record(op string, err error) {
	if m == nil {
		return
	}

	m.records.WithLabelValues(op, result(err)).Inc()
}
