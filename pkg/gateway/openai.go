package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/txn2/mcp-commerce-router/pkg/session"
)

// OpenAIConfig configures the OpenAI-compatible gateway client.
type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Defaults for unset gateway configuration.
const (
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 1500
	DefaultTimeout   = 60 * time.Second
)

// OpenAIGateway implements Gateway against any OpenAI-compatible chat
// completion endpoint.
type OpenAIGateway struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewOpenAIGateway creates a gateway client from cfg.
func NewOpenAIGateway(cfg OpenAIConfig) *OpenAIGateway {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIGateway{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}
}

// Generate runs one chat completion over the session's prompt, history,
// and tool manifest. Transient upstream failures are wrapped in
// ErrUnavailable; everything else is permanent.
func (g *OpenAIGateway) Generate(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages:  buildMessages(req),
		Tools:     buildTools(req.Tools),
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	return buildResult(resp.Choices[0].Message)
}

// buildMessages maps the session conversation onto the wire format, system
// prompt first, history in conversation order.
func buildMessages(req Request) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.SystemPrompt,
	})
	for _, m := range req.History {
		role := m.Role
		// Tool-call records are replayed as assistant context; the
		// backend only distinguishes user from non-user turns.
		if role == session.RoleTool {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}
	return msgs
}

// buildTools exposes the session's fixed manifest as callable functions.
func buildTools(tools []string) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, name := range tools {
		out = append(out, openai.Tool{
			Type:     openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{Name: name},
		})
	}
	return out
}

// buildResult extracts the reply and the messages to append, preserving
// the backend's order: tool-call records first, then the assistant reply.
func buildResult(msg openai.ChatCompletionMessage) (*Result, error) {
	var messages []session.Message
	for _, call := range msg.ToolCalls {
		record, err := json.Marshal(map[string]string{
			"tool":      call.Function.Name,
			"arguments": call.Function.Arguments,
		})
		if err != nil {
			return nil, fmt.Errorf("encoding tool call: %w", err)
		}
		messages = append(messages, session.Message{
			Role:    session.RoleTool,
			Content: string(record),
		})
	}

	reply := strings.TrimSpace(msg.Content)
	if reply == "" && len(messages) == 0 {
		return nil, fmt.Errorf("completion contained no content")
	}
	messages = append(messages, session.Message{
		Role:    session.RoleAssistant,
		Content: reply,
	})

	return &Result{Reply: reply, Messages: messages}, nil
}

// classifyError maps upstream failures onto the gateway taxonomy.
// Timeouts, rate limits, and server-side errors are transient; malformed
// requests and auth failures are permanent.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests,
			apiErr.HTTPStatusCode == http.StatusRequestTimeout,
			apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		default:
			return fmt.Errorf("agent backend rejected request: %w", err)
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// Everything else at this point is a transport-level failure
	// (connection refused, reset, timeout): transient.
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Verify interface compliance.
var _ Gateway = (*OpenAIGateway)(nil)
