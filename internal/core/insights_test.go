package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsights(t *testing.T) {
	store := NewLearningStore(nil)
	require.NoError(t, store.Update(func(st *LearningState) error {
		st.Senders["a@x.com"] = SenderProfile{Importance: 0.9}
		st.Senders["b@x.com"] = SenderProfile{Importance: 0.9}
		st.Senders["c@x.com"] = SenderProfile{Importance: 0.2}
		st.Categories[CategorySocial] = CategoryPreference{PriorityTendency: 0.3, ArchiveTendency: 0.8, FeedbackCount: 4}
		st.Categories[CategoryPrimary] = CategoryPreference{PriorityTendency: 0.7, ArchiveTendency: 0.1, FeedbackCount: 2}
		st.Hours[9] = 5
		st.Hours[14] = 5
		st.Hours[8] = 1
		st.Hours[22] = 2
		st.Feedback = FeedbackTally{Total: 4, Agreements: 3, ByDecision: map[Decision]int{PriorityInbox: 4}}
		return nil
	}))

	in := store.Insights(2)
	require.Len(t, in.TopSenders, 2)
	assert.Equal(t, "a@x.com", in.TopSenders[0].Sender)
	assert.Equal(t, "b@x.com", in.TopSenders[1].Sender)

	require.Len(t, in.Categories, 2)
	assert.Equal(t, CategoryPrimary, in.Categories[0].Category)
	assert.Equal(t, CategorySocial, in.Categories[1].Category)

	require.Len(t, in.TopKeywords, 2)
	assert.Equal(t, "asap", in.TopKeywords[0].Keyword)
	assert.Equal(t, "urgent", in.TopKeywords[1].Keyword)

	assert.Equal(t, []HourInsight{{Hour: 9, Count: 5}, {Hour: 14, Count: 5}, {Hour: 22, Count: 2}}, in.PeakHours)
	assert.Equal(t, 4, in.FeedbackCount)
	assert.InDelta(t, 0.75, in.AgreementRate, 1e-9)
}

func TestInsightsIsIdempotent(t *testing.T) {
	store := NewLearningStore(nil)
	l := newTestLearner(t, store)
	for i, sender := range []string{"a@x.com", "b@x.com", "c@x.com", "a@x.com"} {
		_, err := l.Learn(FeedbackEvent{
			MessageID: "m",
			Decision:  PriorityInbox,
			Snapshot:  TriageSnapshot{Sender: sender, Category: CategoryPrimary, ReceivedAt: time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC)},
		})
		require.NoError(t, err)
	}

	before := store.Snapshot()
	first := store.Insights(0)
	assert.Equal(t, first, store.Insights(0))
	assert.Equal(t, before, store.Snapshot())
	assert.Equal(t, "a@x.com", first.TopSenders[0].Sender)
}
