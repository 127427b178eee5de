// Package services – ProxyService
//
// ProxyService forwards conversations from trusted companion front-ends to
// the completion service. Nothing is persisted; the caller's conversation is
// framed by a guard instruction and trimmed to the forwarding limit.
package services

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/support-chat-backend/internal/llm"
)

// ProxyRequest is a client-supplied conversation. A nil Temperature selects
// the service default.
type ProxyRequest struct {
	Messages    []llm.Turn
	Temperature *float64
}

// ProxyService implements the completion proxy.
type ProxyService struct {
	LLM          llm.Completer
	GuardPrompt  string
	Temperature  float64
	MaxForwarded int
}

// Complete validates req, prepends the guard instruction and returns the
// assistant's reply.
func (s *ProxyService) Complete(ctx context.Context, caller string, req ProxyRequest) (string, error) {
	ctx, span := otel.Tracer("services/ProxyService").Start(ctx, "Complete",
		trace.WithAttributes(
			attribute.String("caller", caller),
			attribute.Int("messages", len(req.Messages)),
		))
	defer span.End()

	if len(req.Messages) == 0 {
		return "", ErrInvalidMessages
	}
	turns := make([]llm.Turn, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role != llm.RoleUser && role != llm.RoleAssistant {
			return "", ErrInvalidMessages
		}
		if strings.TrimSpace(m.Content) == "" {
			return "", ErrInvalidMessages
		}
		turns = append(turns, llm.Turn{Role: role, Content: m.Content})
	}

	temp := s.Temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	if temp < 0 || temp > 2 {
		return "", ErrInvalidTemp
	}

	max := s.MaxForwarded
	if max <= 0 {
		max = 20
	}
	reply, err := s.LLM.Complete(ctx, llm.BuildPrompt(s.GuardPrompt, turns, max), temp)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}
	return reply, nil
}
