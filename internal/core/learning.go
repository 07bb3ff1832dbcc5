package core

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Neutral values used whenever nothing has been learned yet
const (
	NeutralImportance = 0.5
	NeutralTendency   = 0.5
)

// BaselineUrgencyLexicon seeds the learned keyword table
var BaselineUrgencyLexicon = map[string]float64{
	"urgent":          0.9,
	"asap":            0.9,
	"immediate":       0.8,
	"deadline":        0.8,
	"time sensitive":  0.8,
	"action required": 0.8,
	"important":       0.7,
	"priority":        0.7,
	"please respond":  0.6,
	"follow up":       0.5,
	"reminder":        0.5,
}

// LearningStore holds the adaptive state read by the scorer.
//
// Writers are serialized by a mutex and publish a fresh copy of the
// state on every update. Readers load the current copy without locking,
// so a read racing a write sees either the old or the new state, never
// a mix.
type LearningStore struct {
	mu    sync.Mutex
	state atomic.Pointer[LearningState]
}

// NewLearningStore creates a store from a previously loaded state.
// A nil state yields a neutral store with only the baseline lexicon.
func NewLearningStore(state *LearningState) *LearningStore {
	s := &LearningStore{}
	if state == nil {
		state = NewLearningState()
	}
	s.state.Store(state.Clone())
	return s
}

// current returns the published state, which must be treated as read-only
func (s *LearningStore) current() *LearningState {
	return s.state.Load()
}

// SenderImportance returns the learned importance of a sender
func (s *LearningStore) SenderImportance(address string) (float64, bool) {
	p, ok := s.current().Senders[NormalizeKey(address)]
	if !ok {
		return NeutralImportance, false
	}
	return p.Importance, true
}

// Sender returns the full learned profile of a sender
func (s *LearningStore) Sender(address string) (SenderProfile, bool) {
	p, ok := s.current().Senders[NormalizeKey(address)]
	return p, ok
}

// CategoryPreference returns the learned tendencies of a category
func (s *LearningStore) CategoryPreference(c Category) (CategoryPreference, bool) {
	p, ok := s.current().Categories[c]
	if !ok {
		return CategoryPreference{PriorityTendency: NeutralTendency, ArchiveTendency: NeutralTendency}, false
	}
	return p, true
}

// KeywordWeight returns the effective weight of a keyword: the learned
// value if present, otherwise the baseline value
func (s *LearningStore) KeywordWeight(keyword string) (float64, bool) {
	key := keywordKey(keyword)
	if w, ok := s.current().Keywords[key]; ok {
		return w, true
	}
	w, ok := BaselineUrgencyLexicon[key]
	return w, ok
}

// MatchUrgency scans text against the baseline lexicon united with the
// learned keyword table. It returns the summed weight of all matched
// keywords, capped at 1.0, and the matched keywords in sorted order.
func (s *LearningStore) MatchUrgency(text string) (float64, []string) {
	phrases := phraseSet(text)
	if len(phrases) == 0 {
		return 0, nil
	}

	learned := s.current().Keywords
	weights := make(map[string]float64)
	for kw, w := range learned {
		if _, ok := phrases[kw]; ok {
			weights[kw] = w
		}
	}
	for kw, w := range BaselineUrgencyLexicon {
		if _, overridden := learned[kw]; overridden {
			continue
		}
		if _, ok := phrases[kw]; ok {
			weights[kw] = w
		}
	}
	if len(weights) == 0 {
		return 0, nil
	}

	// Sum in sorted order so the result is bit-for-bit reproducible.
	matched := make([]string, 0, len(weights))
	for kw := range weights {
		matched = append(matched, kw)
	}
	sort.Strings(matched)
	total := 0.0
	for _, kw := range matched {
		total += weights[kw]
	}
	if total > 1 {
		total = 1
	}
	return total, matched
}

// Snapshot returns a deep copy of the current state
func (s *LearningStore) Snapshot() *LearningState {
	return s.current().Clone()
}

// Replace swaps in a new state, e.g. after loading from persistence
func (s *LearningStore) Replace(state *LearningState) {
	if state == nil {
		state = NewLearningState()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Store(state.Clone())
}

// Update applies fn to a private copy of the state and publishes it only
// if fn succeeds, so a failed update leaves the store untouched
func (s *LearningStore) Update(fn func(*LearningState) error) error {
	return s.UpdateAndCommit(fn, nil)
}

// UpdateAndCommit is Update with a commit step run on the new state before
// it is published. When commit fails the store keeps the old state. commit
// must not retain or modify the state it is given.
func (s *LearningStore) UpdateAndCommit(fn, commit func(*LearningState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current().Clone()
	if err := fn(next); err != nil {
		return err
	}
	if commit != nil {
		if err := commit(next); err != nil {
			return err
		}
	}
	s.state.Store(next)
	return nil
}
