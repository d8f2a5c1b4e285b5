package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"TradeGate/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisions   *prometheus.CounterVec
	regimeConf  *prometheus.GaugeVec
	poolBalance *prometheus.GaugeVec
	siphons     *prometheus.CounterVec
	lockouts    *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_decisions_total",
				Help: "Validation decisions by symbol and verdict",
			},
			[]string{"symbol", "decision"},
		),
		regimeConf: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradegate_regime_confidence",
				Help: "Confidence of the current regime per symbol and label",
			},
			[]string{"symbol", "label"},
		),
		poolBalance: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradegate_pool_balance",
				Help: "Capital pool balances",
			},
			[]string{"pool"},
		),
		siphons: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_siphons_total",
				Help: "Siphon events by terminal status",
			},
			[]string{"status"},
		),
		lockouts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_lockouts_total",
				Help: "Discipline lockouts by reason",
			},
			[]string{"reason"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradegate_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradegate_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordDecision records a validation verdict.
func (r *Recorder) RecordDecision(symbol string, decision models.Decision) {
	r.decisions.WithLabelValues(symbol, string(decision)).Inc()
}

// RecordRegime records the current regime confidence for a symbol.
func (r *Recorder) RecordRegime(symbol string, label models.RegimeLabel, confidence float64) {
	r.regimeConf.WithLabelValues(symbol, string(label)).Set(confidence)
}

// RecordPools records both pool balances.
func (r *Recorder) RecordPools(active, reserve float64) {
	r.poolBalance.WithLabelValues("active").Set(active)
	r.poolBalance.WithLabelValues("reserve").Set(reserve)
}

// RecordSiphon records a siphon event resolution.
func (r *Recorder) RecordSiphon(status models.SiphonStatus, amount float64) {
	r.siphons.WithLabelValues(string(status)).Inc()
}

// RecordLockout records a discipline lockout.
func (r *Recorder) RecordLockout(reason string) {
	r.lockouts.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
