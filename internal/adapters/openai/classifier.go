package openai

import (
	"context"
	"fmt"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ChatCompleter is the part of the OpenAI client used for classification
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Classifier is a SpamClassifier backed by the OpenAI chat API
type Classifier struct {
	client        ChatCompleter
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClassifier creates a new OpenAI classifier
func NewClassifier(
	client ChatCompleter,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *Classifier {
	return &Classifier{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// NewClassifierFromKey creates a classifier with a default OpenAI client
func NewClassifierFromKey(apiKey, modelName string, maxTokens int, temperature, topP float32, maxBodySize int, logger *zap.Logger, textProcessor *utils.TextProcessor) *Classifier {
	return NewClassifier(openai.NewClient(apiKey), modelName, maxTokens, temperature, topP, maxBodySize, logger, textProcessor)
}

// Classify asks the model whether msg is spam
func (c *Classifier) Classify(ctx context.Context, msg *core.Message) (*core.SpamVerdict, error) {
	prompt := c.textProcessor.BuildSpamPrompt(msg, c.maxBodySize)

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a spam detection system. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	verdict, err := utils.ParseSpamResponse(resp.Choices[0].Message.Content, c.modelName)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Classified message with OpenAI",
		zap.String("message_id", msg.ID),
		zap.String("completion_id", resp.ID),
		zap.Bool("is_spam", verdict.IsSpam),
		zap.Float64("score", verdict.Score))

	return verdict, nil
}
