package llm

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var completions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "completion_requests_total",
		Help: "Calls to the chat-completion service by caller and outcome.",
	},
	[]string{"source", "outcome"},
)

func init() {
	prometheus.MustRegister(completions)
}

// WithMetrics counts every call made through c under the given source label
// ("chat" or "proxy").
func WithMetrics(c Completer, source string) Completer {
	return &instrumented{next: c, source: source}
}

type instrumented struct {
	next   Completer
	source string
}

func (i *instrumented) Complete(ctx context.Context, turns []Turn, temperature float64) (string, error) {
	out, err := i.next.Complete(ctx, turns, temperature)
	completions.WithLabelValues(i.source, outcome(out, err)).Inc()
	return out, err
}

func outcome(out string, err error) string {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case err != nil:
		return "error"
	case out == "":
		return "empty"
	}
	return "ok"
}
