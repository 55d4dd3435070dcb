// Package token issues and enforces single-use, time-bounded survey tokens.
// A token is the only credential on the public survey endpoint, so its URL
// doubles as a one-shot capability.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/Cypherspark/sms-survey/internal/core"
	"github.com/Cypherspark/sms-survey/internal/metrics"
)

// DefaultValidity applies when Issue is called with a non-positive validity.
const DefaultValidity = 24 * time.Hour

// tokenBytes gives 256 bits of entropy.
const tokenBytes = 32

var (
	ErrUnknownToken = errors.New("unknown_token")
	ErrAlreadyUsed  = errors.New("already_used")
	ErrExpired      = errors.New("expired")
)

// Store is the persistence the manager needs. *core.Store satisfies it.
type Store interface {
	CreateToken(ctx context.Context, t core.SurveyToken) (core.SurveyToken, error)
	LookupToken(ctx context.Context, token string) (core.TokenRecord, error)
	MarkTokenUsed(ctx context.Context, token string, at time.Time) (bool, error)
	RedeemToken(ctx context.Context, token string, userID int64, r core.Ratings, source string, at time.Time) (core.Response, error)
}

// Info is what a valid token grants access to.
type Info struct {
	UserID    int64
	Phone     string
	ExpiresAt time.Time
}

type Manager struct {
	store Store
	now   func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// WithClock replaces the wall clock. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Issue records a fresh token for userID valid for validity from now.
func (m *Manager) Issue(ctx context.Context, userID int64, validity time.Duration) (string, error) {
	if validity <= 0 {
		validity = DefaultValidity
	}
	tok, err := generate()
	if err != nil {
		return "", err
	}
	now := m.now()
	_, err = m.store.CreateToken(ctx, core.SurveyToken{
		Token:     tok,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(validity),
	})
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	metrics.TokensIssued.Inc()
	return tok, nil
}

// Validate checks the token without changing it. Checks run in order:
// unknown, already used, expired.
func (m *Manager) Validate(ctx context.Context, token string) (Info, error) {
	if token == "" {
		return Info{}, ErrUnknownToken
	}
	rec, err := m.store.LookupToken(ctx, token)
	if errors.Is(err, core.ErrNotFound) {
		return Info{}, ErrUnknownToken
	}
	if err != nil {
		return Info{}, err
	}
	if rec.Used {
		return Info{}, ErrAlreadyUsed
	}
	if m.now().After(rec.ExpiresAt) {
		return Info{}, ErrExpired
	}
	return Info{UserID: rec.UserID, Phone: rec.Phone, ExpiresAt: rec.ExpiresAt}, nil
}

// Consume seals the token. The update is conditional on used=false, so of
// any number of concurrent calls exactly one succeeds.
//
// Callers storing a response separately must call Consume only after the
// response is durable. A crash between the two leaves the token usable and
// may duplicate the response on retry; it never loses one. Redeem closes
// that window.
func (m *Manager) Consume(ctx context.Context, token string) error {
	ok, err := m.store.MarkTokenUsed(ctx, token, m.now())
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := m.store.LookupToken(ctx, token); errors.Is(err, core.ErrNotFound) {
		return ErrUnknownToken
	}
	return ErrAlreadyUsed
}

// Redeem validates the token, then stores the response and consumes the
// token in a single transaction.
func (m *Manager) Redeem(ctx context.Context, token string, r core.Ratings) (core.Response, error) {
	info, err := m.Validate(ctx, token)
	if err != nil {
		metrics.TokensRedeemed.WithLabelValues(outcome(err)).Inc()
		return core.Response{}, err
	}
	resp, err := m.store.RedeemToken(ctx, token, info.UserID, r, core.SourceWeb, m.now())
	if errors.Is(err, core.ErrTokenUsed) {
		err = ErrAlreadyUsed
	}
	if err != nil {
		metrics.TokensRedeemed.WithLabelValues(outcome(err)).Inc()
		return core.Response{}, err
	}
	metrics.TokensRedeemed.WithLabelValues("ok").Inc()
	return resp, nil
}

func generate() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Error kinds as shown to survey takers.
const (
	KindUnknown     = "UnknownToken"
	KindAlreadyUsed = "AlreadyUsed"
	KindExpired     = "Expired"
)

// Kind maps a token error to its kind, or "" for anything else.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnknownToken):
		return KindUnknown
	case errors.Is(err, ErrAlreadyUsed):
		return KindAlreadyUsed
	case errors.Is(err, ErrExpired):
		return KindExpired
	}
	return ""
}

func outcome(err error) string {
	if k := Kind(err); k != "" {
		return k
	}
	return "error"
}
