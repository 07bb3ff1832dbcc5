package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/mikey/llm-mail-triage/internal/core"
)

func TestNewMetricsIsSingleton(t *testing.T) {
	assert.Same(t, NewMetrics(), NewMetrics())
}

func TestObserve(t *testing.T) {
	m := NewMetrics()

	before := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues(string(core.AutoArchive)))
	m.ObserveTriage(core.AutoArchive, 0.2, 3*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues(string(core.AutoArchive))))

	before = testutil.ToFloat64(m.FeedbackTotal.WithLabelValues(string(core.PriorityInbox), "false"))
	m.ObserveFeedback(core.PriorityInbox, false)
	assert.Equal(t, before+1, testutil.ToFloat64(m.FeedbackTotal.WithLabelValues(string(core.PriorityInbox), "false")))

	before = testutil.ToFloat64(m.ClassifierErrorsTotal)
	m.ObserveClassifierError()
	assert.Equal(t, before+1, testutil.ToFloat64(m.ClassifierErrorsTotal))

	before = testutil.ToFloat64(m.FeedbackRejectedTotal.WithLabelValues("invalid_decision"))
	m.ObserveFeedbackRejected("invalid_decision")
	assert.Equal(t, before+1, testutil.ToFloat64(m.FeedbackRejectedTotal.WithLabelValues("invalid_decision")))
}
