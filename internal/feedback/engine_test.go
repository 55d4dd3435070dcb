package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Cypherspark/sms-survey/internal/core"
)

type fakeStore struct {
	users     map[int64]bool
	responses []core.Response // newest first
	err       error
}

func (f *fakeStore) GetUser(_ context.Context, id int64) (core.User, error) {
	if !f.users[id] {
		return core.User{}, core.ErrNotFound
	}
	return core.User{ID: id}, nil
}

func (f *fakeStore) RecentResponses(_ context.Context, _ int64, limit int) ([]core.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) > limit {
		return f.responses[:limit], nil
	}
	return f.responses, nil
}

func resp(id int64, j, a, m int) core.Response {
	return core.Response{
		ID:        id,
		UserID:    1,
		Ratings:   core.Ratings{Joy: j, Achievement: a, Meaning: m},
		CreatedAt: time.Date(2026, 3, int(id), 12, 0, 0, 0, time.UTC),
	}
}

func TestComputeInsufficientData(t *testing.T) {
	st := &fakeStore{users: map[int64]bool{1: true}, responses: []core.Response{resp(2, 5, 5, 5), resp(1, 5, 5, 5)}}
	_, err := NewEngine(st).Compute(context.Background(), 1)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestComputeUnknownUser(t *testing.T) {
	_, err := NewEngine(&fakeStore{}).Compute(context.Background(), 99)
	require.ErrorIs(t, err, ErrUnknownUser)
}

func TestComputeStorageError(t *testing.T) {
	st := &fakeStore{users: map[int64]bool{1: true}, err: errors.New("db down")}
	_, err := NewEngine(st).Compute(context.Background(), 1)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInsufficientData)
}

func TestComputeOnTarget(t *testing.T) {
	st := &fakeStore{users: map[int64]bool{1: true}, responses: []core.Response{
		resp(3, 7, 7, 7), resp(2, 7, 7, 7), resp(1, 7, 7, 7),
	}}
	rep, err := NewEngine(st).Compute(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 3, rep.Window)
	for _, d := range []Dimension{rep.Joy, rep.Achievement, rep.Meaning} {
		require.Equal(t, 21.0, d.Sum)
		require.Equal(t, 7.0, d.Mean)
		require.Equal(t, 21.0, d.Threshold)
		require.Equal(t, 0.0, d.Distance)
	}
	require.Equal(t, 63.0, rep.TotalSum)
	require.Equal(t, 63.0, rep.TotalThreshold)
	require.Equal(t, 0.0, rep.TotalDistance)
	require.Equal(t, int64(3), rep.Latest.ID)
}

func TestBuildUsesOnlyLastSeven(t *testing.T) {
	var rs []core.Response
	for i := 10; i >= 1; i-- {
		rs = append(rs, resp(int64(i), 10, 1, 5))
	}
	rep, err := Build(1, rs)
	require.NoError(t, err)
	require.Equal(t, 7, rep.Window)
	require.Equal(t, 70.0, rep.Joy.Sum)
	require.Equal(t, 49.0, rep.Joy.Threshold)
	require.Equal(t, 21.0, rep.Joy.Distance)
	require.Equal(t, 7.0, rep.Achievement.Sum)
	require.Equal(t, -42.0, rep.Achievement.Distance)
	require.Equal(t, 5.0, rep.Meaning.Mean)
	require.Equal(t, 147.0, rep.TotalThreshold)
	require.Equal(t, 112.0-147.0, rep.TotalDistance)
	require.Equal(t, int64(10), rep.Latest.ID)
}

func TestBuildMeansAreUnrounded(t *testing.T) {
	rep, err := Build(1, []core.Response{resp(3, 1, 2, 3), resp(2, 2, 2, 3), resp(1, 2, 2, 4)})
	require.NoError(t, err)
	require.InDelta(t, 5.0/3.0, rep.Joy.Mean, 1e-12)
	require.InDelta(t, 10.0/3.0, rep.Meaning.Mean, 1e-12)
}
