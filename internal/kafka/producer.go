package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fathima-sithara/relay-service/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
}

// Producer writes stream events keyed by chat id, so one chat's events stay
// ordered within a partition. Writes go through a circuit breaker so a dead
// broker costs one fast failure instead of a timeout per event.
type Producer struct {
	writer messageWriter
	cb     *gobreaker.CircuitBreaker
	topic  string
}

func NewProducer(brokers []string, topic string, bc BreakerConfig, log *zap.SugaredLogger) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return newProducer(w, topic, bc, log)
}

func newProducer(w messageWriter, topic string, bc BreakerConfig, log *zap.SugaredLogger) *Producer {
	if bc.MaxFailures == 0 {
		bc.MaxFailures = 5
	}
	if bc.Timeout <= 0 {
		bc.Timeout = 30 * time.Second
	}
	st := gobreaker.Settings{
		Name:        "kafka-" + topic,
		MaxRequests: 1,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infow("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Producer{writer: w, cb: gobreaker.NewCircuitBreaker(st), topic: topic}
}

func (p *Producer) Publish(ctx context.Context, e domain.StreamEvent) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := kafkago.Message{
		Key:   []byte(e.ChatID),
		Value: b,
		Time:  e.At,
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", e.Type, p.topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
