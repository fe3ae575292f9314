package extractor

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rxlens/rxlens-api/internal/model"
	"github.com/rxlens/rxlens-api/pkg/circuitbreaker"
)

// Config tunes the vision model call.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = openai.GPT4o
	}
	if c.Temperature == 0 {
		c.Temperature = 0.5
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2000
	}
}

// OpenAIExtractor calls the OpenAI chat-completions API with the
// prescription image attached. Calls go through a circuit breaker so
// a misbehaving upstream fails fast instead of piling up requests.
type OpenAIExtractor struct {
	client *openai.Client
	cfg    Config
	cb     *circuitbreaker.CircuitBreaker
}

func NewOpenAIExtractor(cfg Config) *OpenAIExtractor {
	cfg.applyDefaults()
	return &OpenAIExtractor{
		client: openai.NewClient(cfg.APIKey),
		cfg:    cfg,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "openai-extractor",
			MaxRequests: 5,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
		}),
	}
}

func (e *OpenAIExtractor) Extract(ctx context.Context, img Image, contextRecord *model.PrescriptionRecord) (model.PrescriptionRecord, error) {
	contentURL, err := img.ContentURL()
	if err != nil {
		return model.PrescriptionRecord{}, err
	}

	req := openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: buildInstruction(contextRecord),
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: contentURL,
						},
					},
				},
			},
		},
	}

	var resp openai.ChatCompletionResponse
	err = e.cb.Execute(func() error {
		var callErr error
		resp, callErr = e.client.CreateChatCompletion(ctx, req)
		return callErr
	})
	if err != nil {
		return model.PrescriptionRecord{}, wrapModelErr(err)
	}

	if len(resp.Choices) == 0 {
		return model.PrescriptionRecord{}, wrapModelErr(errors.New("empty response"))
	}

	return parseResponse(resp.Choices[0].Message.Content), nil
}
