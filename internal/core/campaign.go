package core

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	DateLayout        = "2006-01-02"
	maxCampaignLength = 365 * 24 * time.Hour
)

var (
	ErrCampaignStartInPast = errors.New("campaign start date cannot be in the past")
	ErrCampaignEndBefore   = errors.New("campaign end date cannot be before start date")
	ErrCampaignTooLong     = errors.New("campaign duration cannot exceed 1 year")
	ErrInvalidPhone        = errors.New("invalid phone format, use E.164 (e.g. +15551234567)")
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// ValidatePhone accepts E.164 numbers: a leading plus and 8 to 15 digits.
func ValidatePhone(phone string) error {
	if !e164.MatchString(phone) {
		return ErrInvalidPhone
	}
	return nil
}

// ParseCampaign reads YYYY-MM-DD dates and checks them against today.
func ParseCampaign(start, end string, today time.Time) (Campaign, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return Campaign{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return Campaign{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	c := Campaign{StartDate: s, EndDate: e}
	if err := c.Validate(today); err != nil {
		return Campaign{}, err
	}
	return c, nil
}

func (c Campaign) Validate(today time.Time) error {
	start, end := dateOf(c.StartDate), dateOf(c.EndDate)
	switch {
	case start.Before(dateOf(today)):
		return ErrCampaignStartInPast
	case end.Before(start):
		return ErrCampaignEndBefore
	case end.Sub(start) > maxCampaignLength:
		return ErrCampaignTooLong
	}
	return nil
}
