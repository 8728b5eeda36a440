package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "leadqual"

// QualificationMetrics exposes counters/histograms for the qualification engine.
type QualificationMetrics struct {
	turnsTotal              *prometheus.CounterVec
	duplicatesTotal         prometheus.Counter
	extractionFailuresTotal prometheus.Counter
	storeFailuresTotal      *prometheus.CounterVec
	finalizedTotal          *prometheus.CounterVec
	queueMessagesTotal      *prometheus.CounterVec
	turnLatency             prometheus.Histogram
}

func NewQualificationMetrics(reg prometheus.Registerer) *QualificationMetrics {
	m := &QualificationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "turns_total",
			Help:      "Processed inbound turns by chosen action",
		}, []string{"action"}),
		duplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "duplicates_total",
			Help:      "Inbound messages dropped as redeliveries",
		}),
		extractionFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "extraction_failures_total",
			Help:      "Turns whose field extraction failed or timed out",
		}),
		storeFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "store_failures_total",
			Help:      "State store and duplicate guard failures by operation",
		}, []string{"op"}),
		finalizedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "finalized_total",
			Help:      "Finalize attempts by tier and outcome",
		}, []string{"tier", "outcome"}),
		queueMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "messages_total",
			Help:      "Queue messages handled by result",
		}, []string{"result"}),
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "turn_latency_seconds",
			Help:      "Latency of ProcessTurn",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.turnsTotal,
		m.duplicatesTotal,
		m.extractionFailuresTotal,
		m.storeFailuresTotal,
		m.finalizedTotal,
		m.queueMessagesTotal,
		m.turnLatency,
	)
	return m
}

func (m *QualificationMetrics) ObserveTurn(action string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(action).Inc()
	m.turnLatency.Observe(elapsed.Seconds())
}

func (m *QualificationMetrics) IncDuplicate() {
	if m == nil {
		return
	}
	m.duplicatesTotal.Inc()
}

func (m *QualificationMetrics) IncExtractionFailure() {
	if m == nil {
		return
	}
	m.extractionFailuresTotal.Inc()
}

func (m *QualificationMetrics) IncStoreFailure(op string) {
	if m == nil {
		return
	}
	m.storeFailuresTotal.WithLabelValues(op).Inc()
}

// ObserveFinalize records a finalize attempt; outcome is created, duplicate or failed.
func (m *QualificationMetrics) ObserveFinalize(tier, outcome string) {
	if m == nil {
		return
	}
	m.finalizedTotal.WithLabelValues(tier, outcome).Inc()
}

// ObserveQueueMessage records how the worker disposed of a queue message.
func (m *QualificationMetrics) ObserveQueueMessage(result string) {
	if m == nil {
		return
	}
	m.queueMessagesTotal.WithLabelValues(result).Inc()
}
