package provider

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Cypherspark/sms-survey/internal/logging"
)

// Message is an SMS accepted by Dummy.
type Message struct {
	ID   string
	To   string
	Body string
}

// Dummy logs and keeps messages instead of sending them. Useful for local
// runs and tests.
type Dummy struct {
	// Latency simulates provider round trip.
	Latency time.Duration
	// Fail, when set, decides per recipient whether a send fails.
	Fail func(to string) error

	mu   sync.Mutex
	sent []Message
}

func NewDummy() *Dummy { return &Dummy{} }

func (d *Dummy) Send(ctx context.Context, to, body string) (string, error) {
	if d.Latency > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d.Latency):
		}
	}
	if d.Fail != nil {
		if err := d.Fail(to); err != nil {
			return "", err
		}
	}
	id := "dummy-" + uuid.NewString()
	d.mu.Lock()
	d.sent = append(d.sent, Message{ID: id, To: to, Body: body})
	d.mu.Unlock()
	logging.WithField("to", to).WithField("id", id).Debug("dummy sms accepted")
	return id, nil
}

// Sent returns a copy of every accepted message in send order.
func (d *Dummy) Sent() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Message(nil), d.sent...)
}
