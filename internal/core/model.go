package core

import (
	"strings"
	"time"
)

// Category is the provider-assigned mailbox category of a message
type Category string

const (
	CategoryPrimary    Category = "primary"
	CategorySocial     Category = "social"
	CategoryPromotions Category = "promotions"
	CategoryUpdates    Category = "updates"
	CategoryForums     Category = "forums"
	CategorySpam       Category = "spam"
)

// Categories lists every known category in display order
var Categories = []Category{
	CategoryPrimary,
	CategorySocial,
	CategoryPromotions,
	CategoryUpdates,
	CategoryForums,
	CategorySpam,
}

// ParseCategory maps a free-form label onto a known category.
// Unknown or empty labels are reported with ok=false.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return CategoryPrimary, false
}

// archivable reports whether messages of this category may be auto-archived
func (c Category) archivable() bool {
	return c == CategoryPromotions || c == CategorySocial || c == CategoryUpdates
}

// Decision is the queue a message is routed to
type Decision string

const (
	PriorityInbox Decision = "priority_inbox"
	RegularInbox  Decision = "regular_inbox"
	AutoArchive   Decision = "auto_archive"
	SpamFolder    Decision = "spam_folder"
)

// Decisions lists every decision, most visible first
var Decisions = []Decision{PriorityInbox, RegularInbox, AutoArchive, SpamFolder}

// ParseDecision parses a decision name. Both the canonical snake_case form
// and the upper-case form (PRIORITY_INBOX) are accepted.
func ParseDecision(s string) (Decision, error) {
	d := Decision(strings.ToLower(strings.TrimSpace(s)))
	if d.Valid() {
		return d, nil
	}
	return "", &FeedbackValidationError{Value: s, Reason: "unknown decision"}
}

// Valid reports whether d is one of the four queue decisions
func (d Decision) Valid() bool {
	switch d {
	case PriorityInbox, RegularInbox, AutoArchive, SpamFolder:
		return true
	}
	return false
}

// Visibility ranks decisions from most (3) to least (0) visible
func (d Decision) Visibility() int {
	switch d {
	case PriorityInbox:
		return 3
	case RegularInbox:
		return 2
	case AutoArchive:
		return 1
	default:
		return 0
	}
}

// Address is an email address with an optional display name
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Message represents an inbound email handed to the triage core.
// The core never mutates it.
type Message struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	From       Address   `json:"from"`
	Category   Category  `json:"category"`
	ReceivedAt time.Time `json:"received_at"`
	Body       string    `json:"body"`
	ThreadID   string    `json:"thread_id,omitempty"`
	IsRead     bool      `json:"is_read"`
	IsFlagged  bool      `json:"is_flagged"`
	Tags       []string  `json:"tags,omitempty"`
}

// Validate rejects messages that cannot enter the core
func (m *Message) Validate() error {
	if m == nil {
		return &InputError{Reason: "message is nil"}
	}
	if strings.TrimSpace(m.ID) == "" {
		return &InputError{Reason: "message id is required"}
	}
	return nil
}

// Signals is the fixed-shape bundle derived from a single message
type Signals struct {
	SenderImportance float64  `json:"sender_importance"`
	UrgencyHits      float64  `json:"urgency_keyword_hits"`
	MatchedKeywords  []string `json:"matched_keywords,omitempty"`
	CategoryTendency float64  `json:"category_tendency"`
	Recency          float64  `json:"recency_factor"`
	ThreadContinuity float64  `json:"thread_continuity"`
	ExplicitFlag     bool     `json:"explicit_flags"`
}

// AttentionScore is the scorer's output for one message
type AttentionScore struct {
	Score       float64            `json:"score"`
	Factors     map[string]float64 `json:"factors"`
	Explanation string             `json:"explanation"`
}

// SpamVerdict is the result returned by a SpamClassifier
type SpamVerdict struct {
	IsSpam      bool      `json:"is_spam"`
	Score       float64   `json:"score"`
	Confidence  float64   `json:"confidence"`
	Explanation string    `json:"explanation"`
	ModelUsed   string    `json:"model_used"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
}

// TriagedMessage is an annotated copy of a message after one triage pass
type TriagedMessage struct {
	Message   Message        `json:"message"`
	Signals   Signals        `json:"signals"`
	Attention AttentionScore `json:"attention"`
	Spam      SpamVerdict    `json:"spam"`
	Decision  Decision       `json:"decision"`
	TriagedAt time.Time      `json:"triaged_at"`
}

// TriageSnapshot is what is remembered about a triaged message so that
// later feedback can be attributed to its sender, category and keywords
type TriageSnapshot struct {
	MessageID       string    `json:"message_id"`
	Sender          string    `json:"sender"`
	Category        Category  `json:"category"`
	ThreadID        string    `json:"thread_id,omitempty"`
	ReceivedAt      time.Time `json:"received_at"`
	MatchedKeywords []string  `json:"matched_keywords,omitempty"`
	Decision        Decision  `json:"decision"`
	Score           float64   `json:"score"`
	TriagedAt       time.Time `json:"triaged_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// NewTriageSnapshot captures the learning-relevant parts of a triage result
func NewTriageSnapshot(t *TriagedMessage) *TriageSnapshot {
	return &TriageSnapshot{
		MessageID:       t.Message.ID,
		Sender:          NormalizeKey(t.Message.From.Email),
		Category:        t.Message.Category,
		ThreadID:        t.Message.ThreadID,
		ReceivedAt:      t.Message.ReceivedAt,
		MatchedKeywords: append([]string(nil), t.Signals.MatchedKeywords...),
		Decision:        t.Decision,
		Score:           t.Attention.Score,
		TriagedAt:       t.TriagedAt,
	}
}

// BatchStats summarizes one batch pass
type BatchStats struct {
	Total        int     `json:"total"`
	Priority     int     `json:"priority_inbox"`
	Regular      int     `json:"regular_inbox"`
	Archived     int     `json:"auto_archive"`
	Spam         int     `json:"spam_folder"`
	AverageScore float64 `json:"average_score"`
}

// BatchResult groups triaged messages by queue, preserving input order
type BatchResult struct {
	BatchID       string           `json:"batch_id"`
	PriorityInbox []TriagedMessage `json:"priority_inbox"`
	RegularInbox  []TriagedMessage `json:"regular_inbox"`
	AutoArchive   []TriagedMessage `json:"auto_archive"`
	SpamFolder    []TriagedMessage `json:"spam_folder"`
	Stats         BatchStats       `json:"stats"`
}

// Queue returns the slice holding messages for the given decision
func (r *BatchResult) Queue(d Decision) []TriagedMessage {
	switch d {
	case PriorityInbox:
		return r.PriorityInbox
	case RegularInbox:
		return r.RegularInbox
	case AutoArchive:
		return r.AutoArchive
	case SpamFolder:
		return r.SpamFolder
	}
	return nil
}
