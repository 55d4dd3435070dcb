package core_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Cypherspark/sms-survey/internal/core"
	database "github.com/Cypherspark/sms-survey/internal/db"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *core.Store {
	pg := database.StartTestPostgres(t)
	return core.NewStore(pg)
}

func createUser(t *testing.T, s *core.Store, phone string) core.User {
	u, err := s.CreateUser(context.Background(), phone)
	require.NoError(t, err)
	return u
}

func issue(t *testing.T, s *core.Store, userID int64, token string, now time.Time) {
	_, err := s.CreateToken(context.Background(), core.SurveyToken{
		Token: token, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	})
	require.NoError(t, err)
}

func TestCreateUser_DuplicatePhone(t *testing.T) {
	s := newStore(t)
	createUser(t, s, "+15551234567")
	_, err := s.CreateUser(context.Background(), "+15551234567")
	require.ErrorIs(t, err, core.ErrDuplicatePhone)

	u, err := s.UserByPhone(context.Background(), "+15551234567")
	require.NoError(t, err)
	require.Equal(t, "+15551234567", u.Phone)

	_, err = s.UserByPhone(context.Background(), "+15550000000")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestDeleteUser_Cascades(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := createUser(t, s, "+15551234567")
	now := time.Now()
	issue(t, s, u.ID, "tok-cascade", now)
	_, err := s.InsertResponse(ctx, u.ID, core.Ratings{Joy: 5, Achievement: 5, Meaning: 5}, core.SourceSMS, now)
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, u.ID))
	require.ErrorIs(t, s.DeleteUser(ctx, u.ID), core.ErrNotFound)

	_, err = s.LookupToken(ctx, "tok-cascade")
	require.ErrorIs(t, err, core.ErrNotFound)
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, core.Stats{}, st)
}

func TestRecentResponses_NewestFirstAndLimited(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := createUser(t, s, "+15551234567")
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 9; i++ {
		_, err := s.InsertResponse(ctx, u.ID, core.Ratings{Joy: i, Achievement: 1, Meaning: 1, Influence: "day " + strconv.Itoa(i)},
			core.SourceSMS, base.Add(time.Duration(i)*24*time.Hour))
		require.NoError(t, err)
	}

	got, err := s.RecentResponses(ctx, u.ID, 7)
	require.NoError(t, err)
	require.Len(t, got, 7)
	require.Equal(t, 9, got[0].Joy)
	require.Equal(t, 3, got[6].Joy)

	n, err := s.CountResponses(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 9, n)

	all, err := s.ListResponses(ctx, 100, 0)
	require.NoError(t, err)
	require.Len(t, all, 9)
	require.Equal(t, "+15551234567", all[0].Phone)
}

func TestInsertResponse_RejectsOutOfRange(t *testing.T) {
	s := newStore(t)
	u := createUser(t, s, "+15551234567")
	_, err := s.InsertResponse(context.Background(), u.ID, core.Ratings{Joy: 11, Achievement: 1, Meaning: 1}, core.SourceWeb, time.Now())
	require.Error(t, err)
}

func TestMarkTokenUsed_ConcurrentExactlyOnce(t *testing.T) {
	s := newStore(t)
	u := createUser(t, s, "+15551234567")
	issue(t, s, u.ID, "tok-race", time.Now())

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.MarkTokenUsed(context.Background(), "tok-race", time.Now())
			if err != nil {
				t.Errorf("mark used: %v", err)
			}
			if ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), wins)

	rec, err := s.LookupToken(context.Background(), "tok-race")
	require.NoError(t, err)
	require.True(t, rec.Used)
	require.NotNil(t, rec.UsedAt)
	require.Equal(t, "+15551234567", rec.Phone)
}

func TestRedeemToken_ConcurrentStoresOneResponse(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := createUser(t, s, "+15551234567")
	issue(t, s, u.ID, "tok-redeem", time.Now())

	var wins, lost int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RedeemToken(ctx, "tok-redeem", u.ID, core.Ratings{Joy: 8, Achievement: 7, Meaning: 9}, core.SourceWeb, time.Now())
			switch {
			case err == nil:
				atomic.AddInt64(&wins, 1)
			case errors.Is(err, core.ErrTokenUsed):
				atomic.AddInt64(&lost, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), wins)
	require.Equal(t, int64(9), lost)

	n, err := s.CountResponses(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestCampaign_SetAndGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetCampaign(ctx)
	require.ErrorIs(t, err, core.ErrNotFound)

	c := core.Campaign{
		StartDate: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SetCampaign(ctx, c))
	c.EndDate = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetCampaign(ctx, c))

	got, err := s.GetCampaign(ctx)
	require.NoError(t, err)
	require.Equal(t, "2026-05-01", got.StartDate.Format(core.DateLayout))
	require.Equal(t, "2026-07-01", got.EndDate.Format(core.DateLayout))
}
