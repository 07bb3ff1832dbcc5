package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchUrgency(t *testing.T) {
	store := NewLearningStore(nil)

	hits, matched := store.MatchUrgency("Please respond: this is Time-Sensitive.")
	assert.Equal(t, []string{"please respond", "time sensitive"}, matched)
	assert.InDelta(t, 1.0, hits, 1e-9)

	hits, matched = store.MatchUrgency("Weekly reminder")
	assert.Equal(t, []string{"reminder"}, matched)
	assert.InDelta(t, 0.5, hits, 1e-9)

	hits, matched = store.MatchUrgency("")
	assert.Zero(t, hits)
	assert.Empty(t, matched)
}

func TestMatchUrgencyLearnedOverridesBaseline(t *testing.T) {
	store := NewLearningStore(nil)
	require.NoError(t, store.Update(func(st *LearningState) error {
		st.Keywords["urgent"] = 0
		st.Keywords["invoice"] = 0.4
		return nil
	}))

	hits, matched := store.MatchUrgency("urgent invoice")
	assert.Equal(t, []string{"invoice", "urgent"}, matched)
	assert.InDelta(t, 0.4, hits, 1e-9)
}

func TestSenderLookupIsCaseInsensitive(t *testing.T) {
	store := NewLearningStore(nil)
	require.NoError(t, store.Update(func(st *LearningState) error {
		st.Senders["boss@corp.com"] = SenderProfile{Importance: 0.9, UpdateCount: 3}
		return nil
	}))

	v, ok := store.SenderImportance(" Boss@Corp.COM")
	assert.True(t, ok)
	assert.Equal(t, 0.9, v)

	v, ok = store.SenderImportance("stranger@corp.com")
	assert.False(t, ok)
	assert.Equal(t, NeutralImportance, v)
}

func TestUpdateFailureLeavesStateUntouched(t *testing.T) {
	store := NewLearningStore(nil)
	before := store.Snapshot()

	err := store.Update(func(st *LearningState) error {
		st.Senders["x@example.com"] = SenderProfile{Importance: 1}
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, before, store.Snapshot())
}

func TestSnapshotIsIsolated(t *testing.T) {
	store := NewLearningStore(nil)
	snap := store.Snapshot()
	snap.Keywords["urgent"] = 0

	w, _ := store.KeywordWeight("urgent")
	assert.Equal(t, 0.9, w)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	store := NewLearningStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.Update(func(st *LearningState) error {
					st.Hours[9]++
					return nil
				})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.MatchUrgency("urgent deadline")
				store.Insights(5)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, store.Snapshot().Hours[9])
}
