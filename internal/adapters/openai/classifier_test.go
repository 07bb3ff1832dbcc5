package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/utils"
)

type fakeCompleter struct {
	content string
	err     error
	req     openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if f.content == "" {
		return openai.ChatCompletionResponse{ID: "empty"}, nil
	}
	return openai.ChatCompletionResponse{
		ID: "cmpl-1",
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.content}},
		},
	}, nil
}

func newTestClassifier(f *fakeCompleter) *Classifier {
	logger := zap.NewNop()
	return NewClassifier(f, "gpt-4", 200, 0.1, 0.9, 1024, logger, utils.NewTextProcessor(logger))
}

func TestClassify(t *testing.T) {
	f := &fakeCompleter{content: `{"is_spam": true, "score": 0.97, "confidence": 0.9, "explanation": "prize scam"}`}
	v, err := newTestClassifier(f).Classify(context.Background(), &core.Message{ID: "1", Subject: "You've won", From: core.Address{Email: "x@prize.example"}})
	require.NoError(t, err)
	assert.True(t, v.IsSpam)
	assert.Equal(t, "gpt-4", v.ModelUsed)
	assert.Equal(t, "gpt-4", f.req.Model)
	assert.Contains(t, f.req.Messages[1].Content, "Subject: You've won")
}

func TestClassifyErrors(t *testing.T) {
	msg := &core.Message{ID: "1"}

	_, err := newTestClassifier(&fakeCompleter{err: errors.New("rate limited")}).Classify(context.Background(), msg)
	assert.ErrorContains(t, err, "rate limited")

	_, err = newTestClassifier(&fakeCompleter{}).Classify(context.Background(), msg)
	assert.ErrorContains(t, err, "empty response")

	_, err = newTestClassifier(&fakeCompleter{content: "no idea"}).Classify(context.Background(), msg)
	assert.ErrorIs(t, err, utils.ErrNoJSON)
}
