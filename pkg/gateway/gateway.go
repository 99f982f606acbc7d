// Package gateway defines the backend agent contract: a capability that
// accepts a system prompt, an ordered message history, and a tool manifest,
// and returns a reply plus the messages to append to the conversation.
package gateway

import (
	"context"
	"errors"
	"net"

	"github.com/txn2/mcp-commerce-router/pkg/session"
)

// ErrUnavailable marks a transient backend failure (timeout, connection
// loss, overload). Callers may retry; all other errors are permanent.
var ErrUnavailable = errors.New("agent backend unavailable")

// Request carries one conversation to the backend agent.
type Request struct {
	SystemPrompt string
	History      []session.Message
	Tools        []string
}

// Result is the backend agent's response. Messages holds everything to
// append to the session history, in the order the backend produced it;
// Reply is the user-visible portion.
type Result struct {
	Reply    string
	Messages []session.Message
}

// Gateway generates a reply for a conversation. Implementations are
// long-latency remote calls and must honor ctx cancellation.
type Gateway interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// IsTransient reports whether err is worth one retry: an explicit
// ErrUnavailable, a network timeout, or a deadline expiry.
func IsTransient(err error) bool {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
