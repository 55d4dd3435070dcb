// Package webhook authenticates inbound SMS provider callbacks and keeps a
// bounded log of what arrived.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"

	// MaxSkew is how far the callback timestamp may drift from our clock.
	MaxSkew = 900 * time.Second
)

// Sign returns hex(HMAC-SHA-256(secret, timestamp || body)).
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature authenticates body at timestamp (epoch
// seconds) under secret, and the timestamp is within MaxSkew of now.
func Verify(secret, timestamp, signature string, body []byte, now time.Time) bool {
	if secret == "" || signature == "" {
		return false
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxSkew {
		return false
	}
	expected := Sign(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Result classifies an inbound request's authenticity.
type Result int

const (
	Verified Result = iota
	// Unverified means no signature headers were sent at all.
	Unverified
	Invalid
)

func (r Result) String() string {
	switch r {
	case Verified:
		return "verified"
	case Unverified:
		return "unverified"
	default:
		return "invalid"
	}
}

// Policy decides whether an inbound callback may be processed.
type Policy struct {
	Secret string
	// AllowUnsigned admits callbacks that carry no signature headers.
	// Meant for local testing only; every such acceptance is logged.
	AllowUnsigned bool
	Now           func() time.Time
}

// Check classifies the request given its already-read body.
func (p Policy) Check(h http.Header, body []byte) Result {
	sig, ts := h.Get(HeaderSignature), h.Get(HeaderTimestamp)
	if sig == "" && ts == "" {
		return Unverified
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	if Verify(p.Secret, ts, sig, body, now()) {
		return Verified
	}
	return Invalid
}

// Admit reports whether a request with result r should be processed.
func (p Policy) Admit(r Result) bool {
	switch r {
	case Verified:
		return true
	case Unverified:
		return p.AllowUnsigned
	}
	return false
}
