package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/Cypherspark/sms-survey/internal/core"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { return nil }

func TestKafkaPublisherResponseRecorded(t *testing.T) {
	w := &captureWriter{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &KafkaPublisher{writer: w, topic: "survey.responses", now: func() time.Time { return now }}

	r := core.Response{ID: 5, UserID: 42, Ratings: core.Ratings{Joy: 8, Achievement: 7, Meaning: 9, Influence: "friends"}, Source: core.SourceSMS}
	require.NoError(t, p.ResponseRecorded(context.Background(), r))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	require.Equal(t, "user-42", string(msg.Key))

	var ev Event
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	require.Equal(t, TypeResponseRecorded, ev.Type)
	require.Equal(t, core.SourceSMS, ev.Source)
	require.Equal(t, 8, ev.Response.Joy)
	require.Equal(t, "friends", ev.Response.Influence)
	require.True(t, now.Equal(ev.Timestamp))
	require.NotEmpty(t, ev.ID)
	require.Equal(t, ev.ID, string(msg.Headers[0].Value))
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &captureWriter{err: errors.New("no brokers")}, now: time.Now}
	err := p.ResponseRecorded(context.Background(), core.Response{UserID: 1})
	require.ErrorContains(t, err, "no brokers")
}

func TestNewPicksNoopWithoutBrokers(t *testing.T) {
	require.IsType(t, Noop{}, New(nil, "t"))
	require.IsType(t, &KafkaPublisher{}, New([]string{"localhost:9092"}, "t"))
}
