package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/relay-service/internal/domain"
)

type fakeWriter struct {
	msgs  []kafkago.Message
	err   error
	calls int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducer_PublishKeysByChat(t *testing.T) {
	req := require.New(t)
	w := &fakeWriter{}
	p := newProducer(w, "chat.events", BreakerConfig{}, zap.NewNop().Sugar())

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), domain.StreamEvent{
		Type:      domain.StreamMessageCreated,
		ChatID:    "c1",
		MessageID: "m1",
		UserID:    "alice",
		At:        at,
	})
	req.NoError(err)
	req.Len(w.msgs, 1)

	msg := w.msgs[0]
	req.Equal("c1", string(msg.Key))
	req.Equal(at, msg.Time)
	req.Equal("type", msg.Headers[0].Key)
	req.Equal(domain.StreamMessageCreated, string(msg.Headers[0].Value))

	var got domain.StreamEvent
	req.NoError(json.Unmarshal(msg.Value, &got))
	req.Equal("m1", got.MessageID)
}

func TestProducer_BreakerOpensAfterFailures(t *testing.T) {
	req := require.New(t)
	w := &fakeWriter{err: errors.New("broker down")}
	p := newProducer(w, "chat.events", BreakerConfig{MaxFailures: 2, Timeout: time.Minute}, zap.NewNop().Sugar())
	e := domain.StreamEvent{Type: domain.StreamMessageSeen, ChatID: "c1"}

	req.Error(p.Publish(context.Background(), e))
	req.Error(p.Publish(context.Background(), e))

	// Once open, the writer is no longer called
	err := p.Publish(context.Background(), e)
	req.ErrorIs(err, gobreaker.ErrOpenState)
	req.Equal(2, w.calls)
}
