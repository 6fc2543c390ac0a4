package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Submission outcomes
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// BotMetrics tracks the event pipeline from feed to relay.
type BotMetrics struct {
	EventsReceived   prometheus.Counter
	SyncLogs         prometheus.Counter
	Skipped          *prometheus.CounterVec
	Candidates       prometheus.Counter
	BundlesBuilt     prometheus.Counter
	Simulations      *prometheus.CounterVec
	Submissions      *prometheus.CounterVec
	RelayLatency     *prometheus.HistogramVec
	EventErrors      prometheus.Counter
	SubmissionRate   prometheus.Gauge
	OutstandingNonce prometheus.Gauge
}

// NewBotMetrics registers the bot metrics with reg.
func NewBotMetrics(reg prometheus.Registerer, namespace string) *BotMetrics {
	factory := promauto.With(reg)
	return &BotMetrics{
		EventsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of feed events consumed",
		}),
		SyncLogs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_logs_total",
			Help:      "Total number of sync logs inspected",
		}),
		Skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_total",
			Help:      "Sync logs that did not lead to a bundle, by reason",
		}, []string{"reason"}),
		Candidates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Total number of pool pairs found in both exchanges",
		}),
		BundlesBuilt: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundles_built_total",
			Help:      "Total number of signed bundles built",
		}),
		Simulations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_total",
			Help:      "Bundle simulations by outcome",
		}, []string{"outcome"}),
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_submissions_total",
			Help:      "Relay submissions by method and outcome",
		}, []string{"method", "outcome"}),
		RelayLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_latency_seconds",
			Help:      "Relay request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method"}),
		EventErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_errors_total",
			Help:      "Total number of events dropped on error",
		}),
		SubmissionRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "submission_success_rate",
			Help:      "Share of bundle submissions the relay accepted",
		}),
		OutstandingNonce: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outstanding_nonces",
			Help:      "Nonces reserved for bundles still inside their window",
		}),
	}
}

// RecordSubmission counts one relay call and refreshes the success rate.
func (m *BotMetrics) RecordSubmission(method, outcome string, seconds float64) {
	m.Submissions.WithLabelValues(method, outcome).Inc()
	m.RelayLatency.WithLabelValues(method).Observe(seconds)
	m.updateSuccessRate(method)
}

func (m *BotMetrics) updateSuccessRate(method string) {
	var accepted, total float64
	for _, outcome := range []string{OutcomeAccepted, OutcomeRejected, OutcomeFailed} {
		v := counterValue(m.Submissions.WithLabelValues(method, outcome))
		if outcome == OutcomeAccepted {
			accepted = v
		}
		total += v
	}
	if total > 0 {
		m.SubmissionRate.Set(accepted / total)
	}
}

func counterValue(c prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil || metric.Counter == nil {
		return 0
	}
	return metric.Counter.GetValue()
}
