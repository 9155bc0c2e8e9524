package llm

import (
	"context"
	"fmt"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
)

// promptFunc performs one single-shot request and returns the first content block.
type promptFunc func(systemPrompt, userPrompt, schema, apiKey string, settings types.RequestSettings) (string, error)

func llmkitPrompt(systemPrompt, userPrompt, schema, apiKey string, settings types.RequestSettings) (string, error) {
	resp, err := anthropic.PromptWithSettings(systemPrompt, userPrompt, schema, apiKey, settings)
	if err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	return resp.Content[0].Text, nil
}

// AnthropicClient implements Client on top of llmkit.
type AnthropicClient struct {
	apiKey string
	config *Config
	prompt promptFunc
}

// NewAnthropicClient creates a new Anthropic client
func NewAnthropicClient(config *Config, apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	return &AnthropicClient{apiKey: apiKey, config: config, prompt: llmkitPrompt}, nil
}

// GenerateContent generates text content using the specified model tier
func (c *AnthropicClient) GenerateContent(ctx context.Context, messages []Message, tier ModelTier) (string, error) {
	return c.generate(ctx, messages, "", tier)
}

// GenerateJSON uses llmkit structured output when a schema is given.
func (c *AnthropicClient) GenerateJSON(ctx context.Context, messages []Message, schema string, tier ModelTier) (string, error) {
	if schema == "" {
		messages = withSchemaInstruction(messages, `{"type":"object"}`)
	}
	text, err := c.generate(ctx, messages, schema, tier)
	if err != nil {
		return "", err
	}
	return CleanJSONBlock(text), nil
}

func (c *AnthropicClient) generate(ctx context.Context, messages []Message, schema string, tier ModelTier) (string, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for tier %s", tier)
	}
	system, turns := splitSystem(messages)
	if len(turns) == 0 {
		return "", fmt.Errorf("no user message to send")
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	settings := types.RequestSettings{
		Model:       modelName,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	type result struct {
		text string
		err  error
	}
	// llmkit has no context support; the call is abandoned (not aborted) on ctx expiry.
	done := make(chan result, 1)
	go func() {
		text, err := c.prompt(system, flattenTurns(turns), schema, c.apiKey, settings)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", &APICallError{Provider: ProviderAnthropic, Model: modelName, Message: "request abandoned", Cause: ctx.Err()}
	case r := <-done:
		if r.err != nil {
			return "", &APICallError{Provider: ProviderAnthropic, Model: modelName, Message: "prompt", Cause: r.err}
		}
		return r.text, nil
	}
}

// GetModel returns the model name for a tier
func (c *AnthropicClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close is a no-op; llmkit holds no connections.
func (c *AnthropicClient) Close() error {
	return nil
}
