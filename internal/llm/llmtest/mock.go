// Package llmtest provides scripted llm.Client implementations for tests.
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jonathan/longform-writer/internal/llm"
)

// Call records one request made to a Client.
type Call struct {
	Messages []llm.Message
	Schema   string
	Tier     llm.ModelTier
	JSON     bool
}

// Prompt returns every message content joined, for substring assertions.
func (c Call) Prompt() string {
	parts := make([]string, len(c.Messages))
	for i, m := range c.Messages {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}

// Rule answers any call whose joined prompt contains Match.
type Rule struct {
	Match    string
	Response string
	Err      error
	// Once removes the rule after its first use so a later rule can answer repeats.
	Once bool
}

// Client is a scripted llm.Client. Rules are checked in order; GenerateFunc, when set,
// takes precedence. Safe for concurrent use.
type Client struct {
	GenerateFunc func(ctx context.Context, call Call) (string, error)
	Rules        []Rule
	Fallback     string

	mu    sync.Mutex
	calls []Call
}

// On appends a rule and returns the client for chaining.
func (c *Client) On(match, response string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Rules = append(c.Rules, Rule{Match: match, Response: response})
	return c
}

// OnceOn appends a single-use rule.
func (c *Client) OnceOn(match, response string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Rules = append(c.Rules, Rule{Match: match, Response: response, Once: true})
	return c
}

// FailOn appends a rule that returns err.
func (c *Client) FailOn(match string, err error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Rules = append(c.Rules, Rule{Match: match, Err: err})
	return c
}

func (c *Client) GenerateContent(ctx context.Context, messages []llm.Message, tier llm.ModelTier) (string, error) {
	return c.answer(ctx, Call{Messages: messages, Tier: tier})
}

func (c *Client) GenerateJSON(ctx context.Context, messages []llm.Message, schema string, tier llm.ModelTier) (string, error) {
	out, err := c.answer(ctx, Call{Messages: messages, Schema: schema, Tier: tier, JSON: true})
	if err != nil {
		return "", err
	}
	return llm.CleanJSONBlock(out), nil
}

func (c *Client) answer(ctx context.Context, call Call) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.calls = append(c.calls, call)
	fn := c.GenerateFunc
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, call)
	}

	prompt := call.Prompt()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.Rules {
		if !strings.Contains(prompt, r.Match) {
			continue
		}
		if r.Once {
			c.Rules = append(c.Rules[:i:i], c.Rules[i+1:]...)
		}
		if r.Err != nil {
			return "", r.Err
		}
		return r.Response, nil
	}
	if c.Fallback != "" {
		return c.Fallback, nil
	}
	return "", fmt.Errorf("llmtest: no rule matches prompt %q", truncate(prompt, 120))
}

func (c *Client) GetModel(tier llm.ModelTier) string { return "mock-" + string(tier) }

func (c *Client) Close() error { return nil }

// Calls returns a copy of the recorded calls.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallsMatching counts recorded calls whose prompt contains s.
func (c *Client) CallsMatching(s string) int {
	n := 0
	for _, call := range c.Calls() {
		if strings.Contains(call.Prompt(), s) {
			n++
		}
	}
	return n
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
