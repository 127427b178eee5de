// Package llm talks to the external chat-completion service. Callers build
// a conversation of Turns and receive the assistant's text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Conversation roles understood by the completion service.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrNotConfigured means no API key was supplied.
	ErrNotConfigured = errors.New("completion service not configured")
	// ErrUpstream wraps failures reported by the completion service.
	ErrUpstream = errors.New("completion service error")
)

// Turn is one entry of a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer returns the assistant's next reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, turns []Turn, temperature float64) (string, error)
}

// Options configures the OpenAI-compatible completer.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// New returns a Completer for opts. Without an API key every call fails
// with ErrNotConfigured so the process can still start.
func New(opts Options) (Completer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return missingKey{}, nil
	}
	clientOpts := []openai.Option{
		openai.WithToken(opts.APIKey),
		openai.WithModel(opts.Model),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, openai.WithHTTPClient(&http.Client{Timeout: opts.Timeout}))
	}
	model, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("init completion client: %w", err)
	}
	return &OpenAICompleter{model: model}, nil
}

type missingKey struct{}

func (missingKey) Complete(context.Context, []Turn, float64) (string, error) {
	return "", ErrNotConfigured
}

// OpenAICompleter sends conversations through langchaingo's OpenAI client.
type OpenAICompleter struct {
	model llms.Model
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, turns []Turn, temperature float64) (string, error) {
	msgs := make([]llms.MessageContent, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, llms.TextParts(messageType(t.Role), t.Content))
	}
	resp, err := c.model.GenerateContent(ctx, msgs, llms.WithTemperature(temperature))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func messageType(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// BuildPrompt places the system instruction first and then the most recent
// turns of history, keeping at most max entries in total. The system turn is
// never dropped; an empty system string is omitted.
func BuildPrompt(system string, history []Turn, max int) []Turn {
	out := make([]Turn, 0, len(history)+1)
	room := max
	if s := strings.TrimSpace(system); s != "" {
		out = append(out, Turn{Role: RoleSystem, Content: s})
		room--
	}
	if room < 0 {
		room = 0
	}
	if len(history) > room {
		history = history[len(history)-room:]
	}
	return append(out, history...)
}
