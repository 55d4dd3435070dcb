// Package feedback turns a user's recent responses into a rolling report
// measured against a cumulative target of 7 per day per dimension.
package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/Cypherspark/sms-survey/internal/core"
)

const (
	// Window is the number of most recent responses a report covers.
	Window = 7
	// MinResponses is the smallest window that yields a report.
	MinResponses = 3
	// DailyTarget is the per-dimension rating a user is measured against.
	DailyTarget = 7.0

	dimensions = 3
)

var (
	ErrInsufficientData = errors.New("insufficient_data")
	ErrUnknownUser      = errors.New("unknown_user")
)

type Store interface {
	GetUser(ctx context.Context, id int64) (core.User, error)
	RecentResponses(ctx context.Context, userID int64, limit int) ([]core.Response, error)
}

// Dimension is one rating axis summed over the window.
type Dimension struct {
	Sum       float64 `json:"sum"`
	Mean      float64 `json:"mean"`
	Threshold float64 `json:"threshold"`
	// Distance is Sum - Threshold; negative means below target.
	Distance float64 `json:"distance"`
}

type Report struct {
	UserID         int64         `json:"user_id"`
	Window         int           `json:"window"`
	Joy            Dimension     `json:"joy"`
	Achievement    Dimension     `json:"achievement"`
	Meaning        Dimension     `json:"meaning"`
	TotalSum       float64       `json:"total_sum"`
	TotalThreshold float64       `json:"total_threshold"`
	TotalDistance  float64       `json:"total_distance"`
	Latest         core.Response `json:"latest"`
}

type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine { return &Engine{store: store} }

// Compute builds the report for userID from its last Window responses.
func (e *Engine) Compute(ctx context.Context, userID int64) (Report, error) {
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Report{}, ErrUnknownUser
		}
		return Report{}, fmt.Errorf("load user: %w", err)
	}
	rs, err := e.store.RecentResponses(ctx, userID, Window)
	if err != nil {
		return Report{}, fmt.Errorf("load responses: %w", err)
	}
	return Build(userID, rs)
}

// Build computes a report from responses ordered newest first.
func Build(userID int64, rs []core.Response) (Report, error) {
	if len(rs) > Window {
		rs = rs[:Window]
	}
	if len(rs) < MinResponses {
		return Report{}, ErrInsufficientData
	}
	n := float64(len(rs))
	var joy, ach, mean float64
	for _, r := range rs {
		joy += float64(r.Joy)
		ach += float64(r.Achievement)
		mean += float64(r.Meaning)
	}
	threshold := DailyTarget * n
	rep := Report{
		UserID:         userID,
		Window:         len(rs),
		Joy:            dimension(joy, n, threshold),
		Achievement:    dimension(ach, n, threshold),
		Meaning:        dimension(mean, n, threshold),
		TotalSum:       joy + ach + mean,
		TotalThreshold: dimensions * threshold,
		Latest:         rs[0],
	}
	rep.TotalDistance = rep.TotalSum - rep.TotalThreshold
	return rep, nil
}

func dimension(sum, n, threshold float64) Dimension {
	return Dimension{Sum: sum, Mean: sum / n, Threshold: threshold, Distance: sum - threshold}
}
