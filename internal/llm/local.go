package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// LocalClient implements Client for local inference servers.
// Supports Ollama, LocalAI, or any OpenAI-compatible endpoint.
type LocalClient struct {
	baseURL    string
	httpClient *http.Client
	config     *Config
}

// NewLocalClient creates a client for a local inference server
func NewLocalClient(config *Config) *LocalClient {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultLocalURL
	}
	return &LocalClient{
		baseURL: baseURL,
		// Per-call deadline comes from Config.Timeout via the request context.
		httpClient: &http.Client{},
		config:     config,
	}
}

// chatCompletionRequest matches the OpenAI API format (Ollama is compatible)
type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Options        *completionOpts `json:"options,omitempty"` // Ollama-specific options
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionOpts struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"num_predict,omitempty"` // Ollama uses num_predict
	NumCtx      int     `json:"num_ctx,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// GenerateContent generates text content using the specified model tier
func (c *LocalClient) GenerateContent(ctx context.Context, messages []Message, tier ModelTier) (string, error) {
	return c.generate(ctx, messages, tier, false)
}

// GenerateJSON requests json_object output and passes the schema as an instruction.
func (c *LocalClient) GenerateJSON(ctx context.Context, messages []Message, schema string, tier ModelTier) (string, error) {
	text, err := c.generate(ctx, withSchemaInstruction(messages, schema), tier, true)
	if err != nil {
		return "", err
	}
	return CleanJSONBlock(text), nil
}

func (c *LocalClient) generate(ctx context.Context, messages []Message, tier ModelTier, jsonMode bool) (string, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for tier %s", tier)
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	reqBody := chatCompletionRequest{
		Model:    modelName,
		Messages: messages,
		Stream:   false,
		Options: &completionOpts{
			Temperature: c.config.Temperature,
			MaxTokens:   c.config.MaxTokens,
			NumCtx:      c.config.ContextSize,
		},
	}
	if jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &APICallError{Provider: ProviderLocal, Model: modelName, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APICallError{
			Provider: ProviderLocal,
			Model:    modelName,
			Message:  fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", &APICallError{Provider: ProviderLocal, Model: modelName, Message: "decode response", Cause: err}
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return "", &APICallError{Provider: ProviderLocal, Model: modelName, Message: "no completion choices returned"}
	}

	return completion.Choices[0].Message.Content, nil
}

// GetModel returns the model name for a tier
func (c *LocalClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases idle connections.
func (c *LocalClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
