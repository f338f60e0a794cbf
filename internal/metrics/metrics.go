package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline counters. Create one per registry.
type Metrics struct {
	MessagesProcessed *prometheus.CounterVec
	OutreachSends     *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	OperatorActions   *prometheus.CounterVec
	DispatchDuration  prometheus.Histogram
	IngestQueued      prometheus.Gauge
	IngestDropped     prometheus.Counter
	Classifications   *prometheus.CounterVec
}

// New registers the metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobrelay_messages_processed_total",
				Help: "Incoming messages by dispatch outcome",
			},
			[]string{"outcome"},
		),
		OutreachSends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobrelay_outreach_sends_total",
				Help: "Per-contact outreach attempts by transport and result",
			},
			[]string{"transport", "result"},
		),
		Notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobrelay_notifications_total",
				Help: "Operator notifications by result",
			},
			[]string{"result"},
		),
		OperatorActions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobrelay_operator_actions_total",
				Help: "Operator button presses by action and result",
			},
			[]string{"action", "result"},
		),
		DispatchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jobrelay_dispatch_duration_seconds",
				Help:    "Time spent handling one incoming message",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		IngestQueued: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobrelay_ingest_queued",
				Help: "Messages waiting in the ingest queue",
			},
		),
		IngestDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "jobrelay_ingest_dropped_total",
				Help: "Messages dropped because the ingest queue was full",
			},
		),
		Classifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobrelay_classifications_total",
				Help: "Classifier verdicts by label",
			},
			[]string{"label"},
		),
	}
}

// ObserveDispatch records how long a dispatch took.
func (m *Metrics) ObserveDispatch(start time.Time) {
	m.DispatchDuration.Observe(time.Since(start).Seconds())
}
