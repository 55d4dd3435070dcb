package core

import (
	"time"
)

// Response sources.
const (
	SourceSMS   = "sms"
	SourceWeb   = "web"
	SourceAdmin = "admin"
)

type User struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type Ratings struct {
	Joy         int    `json:"joy"`
	Achievement int    `json:"achievement"`
	Meaning     int    `json:"meaning"`
	Influence   string `json:"influence"`
}

type Response struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Phone  string `json:"phone,omitempty"`
	Ratings
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

type SurveyToken struct {
	ID        int64      `json:"id"`
	Token     string     `json:"-"`
	UserID    int64      `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// TokenRecord is a token joined with the phone number of its owner.
type TokenRecord struct {
	SurveyToken
	Phone string
}

// Campaign bounds the days on which dispatch runs. Dates are calendar days
// in the display timezone.
type Campaign struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// ActiveOn reports whether day falls inside the campaign, inclusive.
func (c Campaign) ActiveOn(day time.Time) bool {
	d := dateOf(day)
	return !d.Before(dateOf(c.StartDate)) && !d.After(dateOf(c.EndDate))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Stats struct {
	Users     int `json:"user_count"`
	Responses int `json:"response_count"`
}
