package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mikey/llm-mail-triage/internal/core"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the triage service
type Metrics struct {
	DecisionsTotal        *prometheus.CounterVec
	AttentionScore        prometheus.Histogram
	TriageDuration        prometheus.Histogram
	BatchSize             prometheus.Histogram
	FeedbackTotal         *prometheus.CounterVec
	FeedbackRejectedTotal *prometheus.CounterVec
	ClassifierErrorsTotal prometheus.Counter
}

// NewMetrics creates and registers the triage metrics.
//
// Registration happens once per process; later calls return the same set.
//
// Metrics:
//   - mail_triage_decisions_total{decision}
//   - mail_triage_attention_score
//   - mail_triage_duration_seconds
//   - mail_triage_batch_size
//   - mail_triage_feedback_total{decision,agreed}
//   - mail_triage_feedback_rejected_total{reason}
//   - mail_triage_classifier_errors_total
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			DecisionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "mail_triage",
					Name:      "decisions_total",
					Help:      "Messages routed, by queue",
				},
				[]string{"decision"},
			),
			AttentionScore: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "mail_triage",
					Name:      "attention_score",
					Help:      "Distribution of attention scores",
					Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
				},
			),
			TriageDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "mail_triage",
					Name:      "duration_seconds",
					Help:      "Time to triage a single message, spam classification included",
					Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
				},
			),
			BatchSize: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "mail_triage",
					Name:      "batch_size",
					Help:      "Number of messages per batch",
					Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
				},
			),
			FeedbackTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "mail_triage",
					Name:      "feedback_total",
					Help:      "Feedback events applied, by corrected decision",
				},
				[]string{"decision", "agreed"},
			),
			FeedbackRejectedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "mail_triage",
					Name:      "feedback_rejected_total",
					Help:      "Feedback events rejected before learning",
				},
				[]string{"reason"},
			),
			ClassifierErrorsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "mail_triage",
					Name:      "classifier_errors_total",
					Help:      "Spam classifications that failed and fell back to not spam",
				},
			),
		}
	})
	return globalMetrics
}

// ObserveTriage records one routed message
func (m *Metrics) ObserveTriage(decision core.Decision, score float64, elapsed time.Duration) {
	m.DecisionsTotal.WithLabelValues(string(decision)).Inc()
	m.AttentionScore.Observe(score)
	m.TriageDuration.Observe(elapsed.Seconds())
}

// ObserveBatch records the size of a batch
func (m *Metrics) ObserveBatch(size int) {
	m.BatchSize.Observe(float64(size))
}

// ObserveFeedback records an applied feedback event
func (m *Metrics) ObserveFeedback(decision core.Decision, agreed bool) {
	m.FeedbackTotal.WithLabelValues(string(decision), strconv.FormatBool(agreed)).Inc()
}

// ObserveFeedbackRejected records a rejected feedback event
func (m *Metrics) ObserveFeedbackRejected(reason string) {
	m.FeedbackRejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveClassifierError records a failed spam classification
func (m *Metrics) ObserveClassifierError() {
	m.ClassifierErrorsTotal.Inc()
}

var _ core.Observer = (*Metrics)(nil)
