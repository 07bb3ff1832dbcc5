package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ContentGenerator is the part of a Gemini model used for classification
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Classifier is a SpamClassifier backed by Google Gemini
type Classifier struct {
	client        *genai.Client
	model         ContentGenerator
	modelName     string
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClassifier creates a new Gemini classifier
func NewClassifier(
	ctx context.Context,
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*Classifier, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))
	model.ResponseMIMEType = "application/json"

	c := newClassifier(model, modelName, maxBodySize, logger, textProcessor)
	c.client = client
	return c, nil
}

func newClassifier(model ContentGenerator, modelName string, maxBodySize int, logger *zap.Logger, textProcessor *utils.TextProcessor) *Classifier {
	return &Classifier{
		model:         model,
		modelName:     modelName,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Close closes the Gemini client
func (c *Classifier) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Classify asks the model whether msg is spam
func (c *Classifier) Classify(ctx context.Context, msg *core.Message) (*core.SpamVerdict, error) {
	prompt := c.textProcessor.BuildSpamPrompt(msg, c.maxBodySize)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	verdict, err := utils.ParseSpamResponse(sb.String(), c.modelName)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Classified message with Gemini",
		zap.String("message_id", msg.ID),
		zap.Bool("is_spam", verdict.IsSpam),
		zap.Float64("score", verdict.Score))

	return verdict, nil
}
