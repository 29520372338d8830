package recommend

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/upsell-cli/internal/model"
	"github.com/sells-group/upsell-cli/internal/resilience"
	"github.com/sells-group/upsell-cli/pkg/anthropic"
	"github.com/sells-group/upsell-cli/pkg/openai"
)

// Provider turns a prompt into raw model text.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, p Prompt) (string, error)
}

// OpenAIProvider calls an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIProvider wraps client. An empty model defers to the client default.
func NewOpenAIProvider(client openai.Client, modelName string, maxTokens int, temperature float64) *OpenAIProvider {
	return &OpenAIProvider{client: client, model: modelName, maxTokens: maxTokens, temperature: temperature}
}

func (p *OpenAIProvider) Name() string  { return model.ProviderOpenAI }
func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	temp := p.temperature
	maxTokens := p.maxTokens
	resp, err := p.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.Message{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", eris.Wrap(err, "recommend: openai completion")
	}
	content := resp.Content()
	if content == "" {
		return "", eris.New("recommend: openai returned no choices")
	}
	return content, nil
}

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider wraps client.
func NewAnthropicProvider(client anthropic.Client, modelName string, maxTokens int, temperature float64) *AnthropicProvider {
	return &AnthropicProvider{client: client, model: modelName, maxTokens: int64(maxTokens), temperature: temperature}
}

func (p *AnthropicProvider) Name() string  { return model.ProviderAnthropic }
func (p *AnthropicProvider) Model() string { return p.model }

func (p *AnthropicProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	temp := p.temperature
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		System:      prompt.System,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt.User}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "recommend: anthropic message")
	}
	resp.Usage.LogCost(p.model, "recommend")
	text := resp.Text()
	if text == "" {
		return "", eris.New("recommend: anthropic returned no text")
	}
	return text, nil
}

// GuardedProvider skips its provider while the breaker is open, so the
// generator falls back without waiting on a provider that keeps failing.
type GuardedProvider struct {
	Provider
	breaker *resilience.Breaker
}

// WithBreaker wraps p with b.
func WithBreaker(p Provider, b *resilience.Breaker) *GuardedProvider {
	return &GuardedProvider{Provider: p, breaker: b}
}

func (g *GuardedProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return resilience.Guard(ctx, g.breaker, func(ctx context.Context) (string, error) {
		return g.Provider.Complete(ctx, prompt)
	})
}
