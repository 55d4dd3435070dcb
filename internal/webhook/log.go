package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Entry is one inbound callback as recorded for operators.
type Entry struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	From       string    `json:"from"`
	Text       string    `json:"text"`
	TextID     string    `json:"text_id,omitempty"`
	Auth       string    `json:"auth"`
	Outcome    string    `json:"outcome"`
}

// Log is a bounded sink for webhook entries.
type Log interface {
	Record(ctx context.Context, e Entry) error
	// Recent returns up to n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
}

func NewEntry(from, text, textID string, auth Result, outcome string, at time.Time) Entry {
	return Entry{
		ID:         uuid.NewString(),
		ReceivedAt: at.UTC(),
		From:       from,
		Text:       text,
		TextID:     textID,
		Auth:       auth.String(),
		Outcome:    outcome,
	}
}

// RingLog keeps the last Cap entries in memory.
type RingLog struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func NewRingLog(capacity int) *RingLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingLog{entries: make([]Entry, capacity)}
}

func (l *RingLog) Record(_ context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
	return nil
}

func (l *RingLog) Recent(_ context.Context, n int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	size := l.next
	if l.full {
		size = len(l.entries)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out, nil
}

// RedisLog keeps the last Cap entries in a capped Redis list so the log
// survives restarts and is shared between replicas.
type RedisLog struct {
	client *redis.Client
	key    string
	cap    int64
}

func NewRedisLog(client *redis.Client, key string, capacity int) *RedisLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &RedisLog{client: client, key: key, cap: int64(capacity)}
}

func (l *RedisLog) Record(ctx context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal webhook entry: %w", err)
	}
	_, err = l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, l.key, b)
		p.LTrim(ctx, l.key, 0, l.cap-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record webhook entry: %w", err)
	}
	return nil
}

func (l *RedisLog) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 || int64(n) > l.cap {
		n = int(l.cap)
	}
	raw, err := l.client.LRange(ctx, l.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read webhook log: %w", err)
	}
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
