// Package vision provides the outcome-verification model call. The engine
// escalates to it when page-text indicators are ambiguous; the provider
// inspects a screenshot against the step's expected outcome and returns a
// verdict with the cost of the call.
package vision

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrRateLimited is returned when the provider rejects the call for rate
// limiting. The engine classifies it explicitly and treats it as a failed
// verification rather than retrying.
var ErrRateLimited = errors.New("vision provider rate limited")

// Reply is the provider's verdict and what it cost.
type Reply struct {
	Content string
	Cost    float64
}

// Provider is the engine-facing vision interface.
type Provider interface {
	VerifyScreenshot(ctx context.Context, prompt, imageBase64, system string) (*Reply, error)
}

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// OpenAIProvider implements Provider against an OpenAI-compatible API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// ProviderOption configures an OpenAIProvider.
type ProviderOption func(*OpenAIProvider) []option.RequestOption

// WithModel sets the model used for verification calls.
func WithModel(model string) ProviderOption {
	return func(p *OpenAIProvider) []option.RequestOption {
		p.model = model
		return nil
	}
}

// WithBaseURL points the provider at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *OpenAIProvider) []option.RequestOption {
		return []option.RequestOption{option.WithBaseURL(baseURL)}
	}
}

// NewOpenAIProvider creates a provider with the given API key.
func NewOpenAIProvider(apiKey string, opts ...ProviderOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("vision provider requires an API key")
	}

	p := &OpenAIProvider{model: DefaultModel}
	requestOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, opt := range opts {
		requestOpts = append(requestOpts, opt(p)...)
	}
	p.client = openai.NewClient(requestOpts...)
	return p, nil
}

// VerifyScreenshot sends the screenshot and prompt to the model and returns
// its verdict. Rate-limit rejections surface as ErrRateLimited.
func (p *OpenAIProvider) VerifyScreenshot(ctx context.Context, prompt, imageBase64, system string) (*Reply, error) {
	dataURL := "data:image/png;base64," + imageBase64

	userMessage := openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
					{OfText: &openai.ChatCompletionContentPartTextParam{Text: prompt}},
					{OfImageURL: &openai.ChatCompletionContentPartImageParam{
						ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
					}},
				},
			},
		},
	}

	messages := []openai.ChatCompletionMessageParamUnion{userMessage}
	if system != "" {
		messages = append([]openai.ChatCompletionMessageParamUnion{openai.SystemMessage(system)}, messages...)
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: messages,
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("vision call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("vision call returned no choices")
	}

	cost := callCost(p.model, prompt, resp.Usage)
	return &Reply{Content: resp.Choices[0].Message.Content, Cost: cost}, nil
}
