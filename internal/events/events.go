// Package events publishes committed message exchanges to NATS JetStream so
// other systems can follow support conversations without polling the API.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Exchange describes one committed question/answer pair.
type Exchange struct {
	ChatID             string    `json:"chat_id"`
	UserID             string    `json:"user_id"`
	UserMessageID      string    `json:"user_message_id"`
	AssistantMessageID string    `json:"assistant_message_id"`
	Question           string    `json:"question"`
	Reply              string    `json:"reply"`
	At                 time.Time `json:"at"`
}

// Publisher emits exchange events.
type Publisher interface {
	PublishExchange(ctx context.Context, ev Exchange) error
}

// Nop discards every event.
type Nop struct{}

// PublishExchange implements Publisher.
func (Nop) PublishExchange(context.Context, Exchange) error { return nil }

// streamPublisher is the subset of jetstream.JetStream used here.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStream publishes events on "<subject>.<chat_id>".
type JetStream struct {
	nc      *nats.Conn
	js      streamPublisher
	subject string
}

// Options locate the NATS server and stream.
type Options struct {
	URL     string
	Stream  string
	Subject string
	Timeout time.Duration
}

// Connect dials NATS and makes sure the stream exists.
func Connect(ctx context.Context, opts Options) (*JetStream, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	nc, err := nats.Connect(opts.URL,
		nats.Name("support-chat-backend"),
		nats.Timeout(opts.Timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	_, err = js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
		Name:        opts.Stream,
		Description: "Committed support chat exchanges",
		Subjects:    []string{opts.Subject + ".*"},
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", opts.Stream, err)
	}

	log.Info().Str("stream", opts.Stream).Str("subject", opts.Subject).Msg("exchange events enabled")
	return &JetStream{nc: nc, js: js, subject: opts.Subject}, nil
}

// PublishExchange implements Publisher. The assistant message ID is sent as
// the JetStream message ID, so a retried publish is stored once.
func (p *JetStream) PublishExchange(ctx context.Context, ev Exchange) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal exchange: %w", err)
	}
	subject := p.subject + "." + ev.ChatID
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(ev.AssistantMessageID)); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (p *JetStream) Close() {
	if p != nil && p.nc != nil {
		_ = p.nc.Drain()
	}
}
