package core

import (
	"sort"
)

// peakHourCount is how many hours are reported as peak priority hours
const peakHourCount = 3

// SenderInsight is one entry of the top-sender list
type SenderInsight struct {
	Sender      string  `json:"sender"`
	Importance  float64 `json:"importance"`
	UpdateCount int     `json:"update_count"`
}

// CategoryInsight is the learned preference of one category
type CategoryInsight struct {
	Category         Category `json:"category"`
	PriorityTendency float64  `json:"priority_tendency"`
	ArchiveTendency  float64  `json:"archive_tendency"`
	FeedbackCount    int      `json:"feedback_count"`
}

// KeywordInsight is one entry of the top-keyword list
type KeywordInsight struct {
	Keyword string  `json:"keyword"`
	Weight  float64 `json:"weight"`
}

// HourInsight is one peak priority hour
type HourInsight struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// LearningInsights summarizes what the learning loop has picked up
type LearningInsights struct {
	TopSenders       []SenderInsight   `json:"sender_importance_top_n"`
	Categories       []CategoryInsight `json:"category_preferences"`
	TopKeywords      []KeywordInsight  `json:"learned_urgency_keywords_top_n"`
	PeakHours        []HourInsight     `json:"peak_priority_hours"`
	FeedbackCount    int               `json:"feedback_count"`
	AgreementRate    float64           `json:"agreement_rate"`
	FeedbackByResult map[Decision]int  `json:"feedback_by_decision"`
	RecentFeedback   []FeedbackRecord  `json:"recent_feedback"`
}

// Insights computes a deterministic summary of the current state.
// Ties are broken by key so repeated calls return identical results.
func (s *LearningStore) Insights(topN int) LearningInsights {
	st := s.current()
	if topN <= 0 {
		topN = 10
	}

	senders := make([]SenderInsight, 0, len(st.Senders))
	for addr, p := range st.Senders {
		senders = append(senders, SenderInsight{Sender: addr, Importance: p.Importance, UpdateCount: p.UpdateCount})
	}
	sort.Slice(senders, func(i, j int) bool {
		if senders[i].Importance != senders[j].Importance {
			return senders[i].Importance > senders[j].Importance
		}
		return senders[i].Sender < senders[j].Sender
	})
	if len(senders) > topN {
		senders = senders[:topN]
	}

	categories := make([]CategoryInsight, 0, len(st.Categories))
	for _, c := range Categories {
		pref, ok := st.Categories[c]
		if !ok {
			continue
		}
		categories = append(categories, CategoryInsight{
			Category:         c,
			PriorityTendency: pref.PriorityTendency,
			ArchiveTendency:  pref.ArchiveTendency,
			FeedbackCount:    pref.FeedbackCount,
		})
	}

	keywords := make([]KeywordInsight, 0, len(st.Keywords))
	for kw, w := range st.Keywords {
		keywords = append(keywords, KeywordInsight{Keyword: kw, Weight: w})
	}
	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Weight != keywords[j].Weight {
			return keywords[i].Weight > keywords[j].Weight
		}
		return keywords[i].Keyword < keywords[j].Keyword
	})
	if len(keywords) > topN {
		keywords = keywords[:topN]
	}

	hours := make([]HourInsight, 0, len(st.Hours))
	for h, n := range st.Hours {
		if n > 0 {
			hours = append(hours, HourInsight{Hour: h, Count: n})
		}
	}
	sort.Slice(hours, func(i, j int) bool {
		if hours[i].Count != hours[j].Count {
			return hours[i].Count > hours[j].Count
		}
		return hours[i].Hour < hours[j].Hour
	})
	if len(hours) > peakHourCount {
		hours = hours[:peakHourCount]
	}

	byDecision := make(map[Decision]int, len(st.Feedback.ByDecision))
	for d, n := range st.Feedback.ByDecision {
		byDecision[d] = n
	}

	var agreement float64
	if st.Feedback.Total > 0 {
		agreement = float64(st.Feedback.Agreements) / float64(st.Feedback.Total)
	}

	// Newest first
	recent := make([]FeedbackRecord, 0, min(topN, len(st.RecentFeedback)))
	for i := len(st.RecentFeedback) - 1; i >= 0 && len(recent) < topN; i-- {
		recent = append(recent, st.RecentFeedback[i])
	}

	return LearningInsights{
		TopSenders:       senders,
		Categories:       categories,
		TopKeywords:      keywords,
		PeakHours:        hours,
		FeedbackCount:    st.Feedback.Total,
		AgreementRate:    agreement,
		FeedbackByResult: byDecision,
		RecentFeedback:   recent,
	}
}
