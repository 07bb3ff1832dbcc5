package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLearningStateRoundTrip(t *testing.T) {
	st := NewLearningState()
	st.Senders["boss@corp.com"] = SenderProfile{Importance: 0.8, UpdateCount: 4, LastUpdated: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	st.Categories[CategoryUpdates] = CategoryPreference{PriorityTendency: 0.2, ArchiveTendency: 0.7, FeedbackCount: 9}
	st.Keywords["invoice"] = 0.35
	st.Hours[14] = 3
	st.Feedback = FeedbackTally{Total: 5, Agreements: 4, ByDecision: map[Decision]int{PriorityInbox: 5}}
	st.RecentFeedback = []FeedbackRecord{
		{EventID: "e1", MessageID: "m1", Sender: "boss@corp.com", CorrectDecision: PriorityInbox, OriginalDecision: RegularInbox, Action: "starred", RecordedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{EventID: "e2", MessageID: "", CorrectDecision: PriorityInbox},
		{EventID: "e3", MessageID: "m3", CorrectDecision: "bogus"},
	}

	data, err := EncodeLearningState(st)
	require.NoError(t, err)

	got, err := DecodeLearningState(data)
	require.NoError(t, err)
	assert.Equal(t, LearningSchemaVersion, got.SchemaVersion)
	assert.Equal(t, st.Senders, got.Senders)
	assert.Equal(t, st.Categories, got.Categories)
	assert.Equal(t, st.Keywords, got.Keywords)
	assert.Equal(t, st.Hours, got.Hours)
	assert.Equal(t, st.Feedback, got.Feedback)
	assert.Equal(t, st.RecentFeedback[:1], got.RecentFeedback)
}

func TestDecodeLegacyState(t *testing.T) {
	legacy := []byte(`{
		"senders": {"Boss@Corp.com": 0.9, "boss@corp.com ": 0.4, "x@y.z": 7},
		"categories": {"Promotions": {"priority_tendency": 0.1, "archive_tendency": 0.9, "feedback_count": 2}, "bogus": {}},
		"keywords": {"Invoice": 0.3, "invoice": 0.6},
		"hours": {"9": 2, "31": 5}
	}`)

	st, err := DecodeLearningState(legacy)
	require.NoError(t, err)

	assert.Equal(t, LearningSchemaVersion, st.SchemaVersion)
	require.Contains(t, st.Senders, "boss@corp.com")
	assert.Equal(t, 0.9, st.Senders["boss@corp.com"].Importance)
	assert.Len(t, st.Senders, 2)
	assert.Equal(t, 1.0, st.Senders["x@y.z"].Importance)
	assert.Equal(t, CategoryPreference{PriorityTendency: 0.1, ArchiveTendency: 0.9, FeedbackCount: 2}, st.Categories[CategoryPromotions])
	assert.Len(t, st.Categories, 1)
	assert.Equal(t, 0.6, st.Keywords["invoice"])
	assert.Equal(t, 0.9, st.Keywords["urgent"], "baseline lexicon is seeded")
	assert.Equal(t, map[int]int{9: 2}, st.Hours)
}

func TestDecodeRejectsUnusableState(t *testing.T) {
	_, err := DecodeLearningState([]byte(`{"schema_version": 99}`))
	assert.ErrorIs(t, err, ErrLearningState)

	_, err = DecodeLearningState([]byte(`not json`))
	assert.ErrorIs(t, err, ErrLearningState)

	var lse *LearningStateError
	assert.ErrorAs(t, err, &lse)
	assert.Equal(t, "decode", lse.Op)
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "boss@corp.com", NormalizeKey("  Boss@CORP.com "))
	assert.Equal(t, "follow up", keywordKey("Follow-Up"))
	assert.Equal(t, NormalizeKey("école"), NormalizeKey("ÉCOLE"))
}
