package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aktagon/llmkit/anthropic/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnthropicClient_RequiresKey(t *testing.T) {
	_, err := NewAnthropicClient(DefaultAnthropicConfig(), "")
	assert.Error(t, err)
}

func TestAnthropicClient_GenerateContent(t *testing.T) {
	client, err := NewAnthropicClient(DefaultAnthropicConfig(), "test-key")
	require.NoError(t, err)

	client.prompt = func(system, user, schema, apiKey string, settings types.RequestSettings) (string, error) {
		assert.Equal(t, "persona", system)
		assert.Equal(t, "write", user)
		assert.Empty(t, schema)
		assert.Equal(t, "test-key", apiKey)
		assert.Equal(t, "claude-sonnet-4-0", settings.Model)
		assert.Equal(t, DefaultMaxTokens, settings.MaxTokens)
		return "section body", nil
	}

	out, err := client.GenerateContent(context.Background(), []Message{System("persona"), User("write")}, TierAdvanced)
	require.NoError(t, err)
	assert.Equal(t, "section body", out)
}

func TestAnthropicClient_GenerateJSON_PassesSchema(t *testing.T) {
	client, err := NewAnthropicClient(DefaultAnthropicConfig(), "test-key")
	require.NoError(t, err)

	client.prompt = func(system, user, schema, apiKey string, settings types.RequestSettings) (string, error) {
		assert.Equal(t, `{"type":"object"}`, schema)
		return "```json\n{\"a\":1}\n```", nil
	}

	out, err := client.GenerateJSON(context.Background(), []Message{User("x")}, `{"type":"object"}`, TierLite)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestAnthropicClient_WrapsErrors(t *testing.T) {
	client, err := NewAnthropicClient(DefaultAnthropicConfig(), "test-key")
	require.NoError(t, err)

	cause := errors.New("overloaded")
	client.prompt = func(string, string, string, string, types.RequestSettings) (string, error) {
		return "", cause
	}

	_, err = client.GenerateContent(context.Background(), []Message{User("x")}, TierLite)
	var apiErr *APICallError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ProviderAnthropic, apiErr.Provider)
	assert.ErrorIs(t, err, cause)
}

func TestAnthropicClient_AbandonsOnTimeout(t *testing.T) {
	cfg := DefaultAnthropicConfig()
	cfg.Timeout = 20 * time.Millisecond
	client, err := NewAnthropicClient(cfg, "test-key")
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	client.prompt = func(string, string, string, string, types.RequestSettings) (string, error) {
		<-release
		return "late", nil
	}

	_, err = client.GenerateContent(context.Background(), []Message{User("x")}, TierLite)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnthropicClient_NoUserMessage(t *testing.T) {
	client, err := NewAnthropicClient(DefaultAnthropicConfig(), "test-key")
	require.NoError(t, err)
	_, err = client.GenerateContent(context.Background(), []Message{System("only system")}, TierLite)
	assert.Error(t, err)
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{Provider: "openai"}, "key")
	assert.Error(t, err)
}

func TestNewClient_Local(t *testing.T) {
	c, err := NewClient(context.Background(), DefaultLocalConfig(), "")
	require.NoError(t, err)
	_, ok := c.(*LocalClient)
	assert.True(t, ok)
}
