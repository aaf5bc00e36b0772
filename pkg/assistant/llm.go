package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/Arjun-57561/Veena/pkg/constants"
	"github.com/Arjun-57561/Veena/pkg/dialog"
	"github.com/Arjun-57561/Veena/pkg/models"
)

const (
	systemPrompt    = "You are Veena, a helpful multilingual insurance assistant."
	llmTemperature  = 0.7
	llmMaxTokens    = 300
	extractTemplate = `You are an insurance assistant AI. Your job is to extract customer information from the input.

Input: %q

Return a JSON object with keys:
- fullName
- name
- policyNumber
- premium
- paymentDate
- paymentMode
- phoneNumber
- email

Only include fields that are mentioned in the input. Use null or omit for missing values.`
	replyTemplate = `User said: %s
Current Dialog Step: %s
Customer Info: %s

Respond in %s language. Be helpful, natural, and friendly like a human insurance advisor.`
)

// LLMClient answers through an OpenAI-compatible chat completion endpoint.
type LLMClient struct {
	client *openai.Client
	model  string
	nodes  []models.DialogNode
	logger *logrus.Logger
}

func NewLLMClient(apiKey, baseURL, model string, nodes []models.DialogNode, logger *logrus.Logger) *LLMClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &LLMClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		nodes:  nodes,
		logger: logger,
	}
}

func (c *LLMClient) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: llmTemperature,
		MaxTokens:   llmMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Welcome greets with the first dialog node without calling the model.
func (c *LLMClient) Welcome(ctx context.Context, req WelcomeRequest) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, failed("welcome", err)
	}
	if len(c.nodes) == 0 {
		return Reply{}, failed("welcome", errors.New("dialog source is empty"))
	}
	name := req.FullName
	if name == "" {
		name = constants.WelcomeFallbackName
	}
	lang := req.Lang
	if lang == "" {
		lang = constants.DefaultLocale
	}
	return Reply{
		Response: dialog.Resolve(c.nodes[0].Prompt(lang), name),
		Lang:     lang,
	}, nil
}

// Query extracts profile fields from the utterance, then asks the model for a reply.
func (c *LLMClient) Query(ctx context.Context, req QueryRequest) (Reply, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Reply{}, failed("query", errors.New("no input provided"))
	}
	lang := req.Lang
	if lang == "" {
		lang = constants.DefaultLocale
	}

	customer := req.CustomerData.Clone()
	extracted, err := c.complete(ctx, fmt.Sprintf(extractTemplate, text))
	if err != nil {
		return Reply{}, failed("query", err)
	}
	if fields, err := parseExtraction(extracted); err != nil {
		c.logger.WithError(err).WithField("raw", extracted).Warn("Failed to parse extracted customer fields")
	} else {
		customer.FillMissing(fields)
	}

	info, err := json.Marshal(customer)
	if err != nil {
		return Reply{}, failed("query", err)
	}
	step := "Unknown"
	if len(c.nodes) > 0 && c.nodes[0].Title != "" {
		step = c.nodes[0].Title
	}

	answer, err := c.complete(ctx, fmt.Sprintf(replyTemplate, text, step, info, strings.ToUpper(lang)))
	if err != nil {
		return Reply{}, failed("query", err)
	}

	return Reply{
		Response:     answer,
		Lang:         lang,
		CustomerData: &customer,
	}, nil
}

// SaveCustomer has no backing store in this mode; the record is only logged.
func (c *LLMClient) SaveCustomer(ctx context.Context, customer models.CustomerData) error {
	if err := ctx.Err(); err != nil {
		return failed("save_customer", err)
	}
	c.logger.WithField("customer", customer).Info("Customer data received")
	return nil
}

// parseExtraction decodes the model's JSON object, tolerating a fenced code block around it.
func parseExtraction(raw string) (models.CustomerData, error) {
	s := strings.TrimSpace(raw)
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	var out models.CustomerData
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return models.CustomerData{}, err
	}
	return out, nil
}
