// Package router maps inbound user messages to backend services and
// executes full conversation turns against them.
package router

import (
	"errors"
	"strings"
	"unicode"

	"github.com/txn2/mcp-commerce-router/pkg/session"
)

// ErrUnroutable indicates no configured service matched the message. The
// caller should ask the user for clarification; the router never guesses
// a default service.
var ErrUnroutable = errors.New("no service matches the message")

// Classifier performs deterministic keyword classification. The first
// service in declaration order with any matching trigger wins, so
// overlapping trigger sets resolve by catalog order.
type Classifier struct {
	services []session.Service
}

// NewClassifier creates a classifier over the service catalog. The slice
// order is the tie-break order and is preserved.
func NewClassifier(services []session.Service) *Classifier {
	return &Classifier{services: services}
}

// Classify selects the target service for a message. Matching is
// case-insensitive and whole-word: single-word triggers match message
// tokens, multi-word triggers match whole-word sequences. Returns
// ErrUnroutable when nothing matches.
func (c *Classifier) Classify(message string) (session.Service, error) {
	tokens := tokenize(message)
	if len(tokens) == 0 {
		return session.Service{}, ErrUnroutable
	}

	tokenSet := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = struct{}{}
	}
	joined := " " + strings.Join(tokens, " ") + " "

	for _, svc := range c.services {
		for _, keyword := range svc.Keywords {
			trigger := strings.Join(tokenize(keyword), " ")
			if trigger == "" {
				continue
			}
			if !strings.Contains(trigger, " ") {
				if _, ok := tokenSet[trigger]; ok {
					return svc, nil
				}
				continue
			}
			if strings.Contains(joined, " "+trigger+" ") {
				return svc, nil
			}
		}
	}
	return session.Service{}, ErrUnroutable
}

// tokenize lowercases the text and splits it into word tokens.
// Apostrophes stay inside tokens so triggers like "domino's" survive.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}
