package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	subject string
	data    []byte
	err     error
}

func (f *fakeStream) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.subject, f.data = subject, data
	if f.err != nil {
		return nil, f.err
	}
	return &jetstream.PubAck{Stream: "S", Sequence: 1}, nil
}

func TestJetStream_PublishExchange(t *testing.T) {
	fs := &fakeStream{}
	p := &JetStream{js: fs, subject: "support.exchanges"}

	ev := Exchange{ChatID: "c1", UserID: "u1", UserMessageID: "m1", AssistantMessageID: "m2", Question: "q", Reply: "r", At: time.Unix(0, 0).UTC()}
	require.NoError(t, p.PublishExchange(context.Background(), ev))
	require.Equal(t, "support.exchanges.c1", fs.subject)

	var got Exchange
	require.NoError(t, json.Unmarshal(fs.data, &got))
	require.Equal(t, ev, got)
}

func TestJetStream_PublishError(t *testing.T) {
	fs := &fakeStream{err: errors.New("no responders")}
	p := &JetStream{js: fs, subject: "s"}
	err := p.PublishExchange(context.Background(), Exchange{ChatID: "c"})
	require.ErrorContains(t, err, "publish to s.c")
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(context.Background(), Options{URL: "nats://127.0.0.1:1", Stream: "S", Subject: "s", Timeout: 200 * time.Millisecond})
	require.Error(t, err)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	require.NoError(t, p.PublishExchange(context.Background(), Exchange{}))
	var js *JetStream
	js.Close()
}
