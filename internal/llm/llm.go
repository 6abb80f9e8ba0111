package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/eduquest/internal/llm/prompts"
	"github.com/pavelanni/eduquest/internal/model"
)

// ErrInsightUnavailable is wrapped by every failure of the insight generator:
// transport errors, empty replies, malformed JSON and missing required fields.
var ErrInsightUnavailable = errors.New("insight unavailable")

var validate = validator.New(validator.WithRequiredStructEnabled())

// insightPayload mirrors model.AIInsight with presence-checked fields. Empty
// arrays are accepted; absent or null ones are not.
type insightPayload struct {
	OverallAssessment string             `json:"overallAssessment" validate:"required"`
	FocusTopics       []string           `json:"focusTopics" validate:"required"`
	StudySchedule     []studyTaskPayload `json:"studySchedule" validate:"required,dive"`
	Recommendations   []string           `json:"recommendations" validate:"required"`
}

type studyTaskPayload struct {
	Day  string `json:"day" validate:"required"`
	Task string `json:"task" validate:"required"`
}

func (p insightPayload) toModel() model.AIInsight {
	schedule := make([]model.StudyTask, len(p.StudySchedule))
	for i, st := range p.StudySchedule {
		schedule[i] = model.StudyTask{Day: st.Day, Task: st.Task}
	}
	return model.AIInsight{
		OverallAssessment: p.OverallAssessment,
		FocusTopics:       p.FocusTopics,
		StudySchedule:     schedule,
		Recommendations:   p.Recommendations,
	}
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	lang    string
	prompts *prompts.Builder
}

// New creates a new LLM client. lang selects the language of generated text.
func New(baseURL, apiKey, modelName, lang string) (*Client, error) {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	b, err := prompts.Default()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		lang:    lang,
		prompts: b,
	}, nil
}

// Ping checks that the endpoint answers a model listing.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// GenerateInsight asks the model for an improvement plan for result. The reply
// is validated here and never partially applied: either a complete AIInsight
// is returned or the error wraps ErrInsightUnavailable.
func (c *Client) GenerateInsight(ctx context.Context, test model.Test, result model.TestResult) (model.AIInsight, error) {
	system, user, err := c.prompts.BuildInsight(prompts.NewInsightData(test, result, c.lang))
	if err != nil {
		return model.AIInsight{}, fmt.Errorf("%w: build prompt: %w", ErrInsightUnavailable, err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.4,
	})
	if err != nil {
		return model.AIInsight{}, fmt.Errorf("%w: LLM API call: %w", ErrInsightUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return model.AIInsight{}, fmt.Errorf("%w: LLM returned no choices", ErrInsightUnavailable)
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM insight response", "result_id", result.ID, "raw", raw)

	insight, err := ParseInsight(raw)
	if err != nil {
		return model.AIInsight{}, err
	}
	return insight, nil
}

// ParseInsight decodes and validates a raw generator reply.
func ParseInsight(raw string) (model.AIInsight, error) {
	raw = stripCodeFence(raw)
	var p insightPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return model.AIInsight{}, fmt.Errorf("%w: parse LLM response: %w", ErrInsightUnavailable, err)
	}
	if err := validate.Struct(p); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			missing := make([]string, len(ve))
			for i, fe := range ve {
				missing[i] = fe.Namespace()
			}
			return model.AIInsight{}, fmt.Errorf("%w: missing fields %s", ErrInsightUnavailable, strings.Join(missing, ", "))
		}
		return model.AIInsight{}, fmt.Errorf("%w: %w", ErrInsightUnavailable, err)
	}
	return p.toModel(), nil
}

// stripCodeFence removes a ```json fence some models wrap JSON replies in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
