// Package events publishes survey domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/Cypherspark/sms-survey/internal/core"
	"github.com/Cypherspark/sms-survey/internal/logging"
)

const TypeResponseRecorded = "response.recorded"

type Event struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Source    string        `json:"source"`
	Response  core.Response `json:"response"`
	Timestamp time.Time     `json:"timestamp"`
}

// Publisher emits an event for every stored response. Publishing is best
// effort: callers log failures and carry on.
type Publisher interface {
	ResponseRecorded(ctx context.Context, r core.Response) error
	Close() error
}

// Noop drops every event. Used when no brokers are configured.
type Noop struct{}

func (Noop) ResponseRecorded(context.Context, core.Response) error { return nil }
func (Noop) Close() error                                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w, topic: topic, now: time.Now}
}

// New returns a Kafka publisher when brokers are set and Noop otherwise.
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return Noop{}
	}
	return NewKafkaPublisher(brokers, topic)
}

func (p *KafkaPublisher) ResponseRecorded(ctx context.Context, r core.Response) error {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      TypeResponseRecorded,
		Source:    r.Source,
		Response:  r,
		Timestamp: p.now().UTC(),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	// keyed by user so one user's responses stay ordered within a partition
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("user-%d", r.UserID)),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(ev.ID)},
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	logging.WithFields(map[string]interface{}{
		"event_id":   ev.ID,
		"event_type": ev.Type,
		"topic":      p.topic,
	}).Debug("event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
