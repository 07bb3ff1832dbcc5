package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mikey/llm-mail-triage/internal/core"
)

// SpamPromptFormat is the prompt shared by every LLM classifier
const SpamPromptFormat = `You are a spam detection system. Analyze the following email and determine if it's spam.
Respond with a JSON object containing:
- is_spam: boolean (true if spam, false if not)
- score: number between 0 and 1 (higher means more likely to be spam)
- confidence: number between 0 and 1 (how confident you are in your assessment)
- explanation: string (brief explanation of why you think it's spam or not)

Email:
From: %s
Category: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`

// ErrNoJSON is returned when an LLM reply contains no JSON object
var ErrNoJSON = errors.New("no JSON object in LLM response")

// SpamAnalysisResponse represents the structured response from the LLM
type SpamAnalysisResponse struct {
	IsSpam      bool    `json:"is_spam"`
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// BuildSpamPrompt formats the classification prompt for a message
func (tp *TextProcessor) BuildSpamPrompt(msg *core.Message, maxBodySize int) string {
	from := msg.From.Email
	if msg.From.Name != "" {
		from = fmt.Sprintf("%s <%s>", msg.From.Name, msg.From.Email)
	}
	body := tp.ProcessText(msg.Body, maxBodySize)
	return fmt.Sprintf(SpamPromptFormat, from, msg.Category, tp.SanitizeUTF8(msg.Subject), body)
}

// ExtractJSON returns the outermost JSON object in text, tolerating
// prose or code fences around it
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

// ParseSpamResponse converts an LLM reply into a spam verdict
func ParseSpamResponse(text, model string) (*core.SpamVerdict, error) {
	var resp SpamAnalysisResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		// Try to extract JSON from the text response
		jsonStr, extractErr := ExtractJSON(text)
		if extractErr != nil {
			return nil, fmt.Errorf("failed to extract JSON from LLM response: %w", extractErr)
		}
		if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
			return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
		}
	}

	return &core.SpamVerdict{
		IsSpam:      resp.IsSpam,
		Score:       clamp(resp.Score),
		Confidence:  clamp(resp.Confidence),
		Explanation: resp.Explanation,
		ModelUsed:   model,
		AnalyzedAt:  time.Now(),
	}, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 1:
		return 1
	}
	return v
}
