package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"github.com/Cypherspark/sms-survey/internal/core"
	"github.com/Cypherspark/sms-survey/internal/logging"
	"github.com/Cypherspark/sms-survey/internal/provider"
)

func TestMain(m *testing.M) {
	logging.Silence()
	os.Exit(m.Run())
}

type fakeStore struct {
	users    []core.User
	counts   map[int64]int
	countErr map[int64]error
	campaign *core.Campaign
	listErr  error
}

func (f *fakeStore) ListUsers(context.Context) ([]core.User, error) {
	return f.users, f.listErr
}

func (f *fakeStore) CountResponses(_ context.Context, id int64) (int, error) {
	if err := f.countErr[id]; err != nil {
		return 0, err
	}
	return f.counts[id], nil
}

func (f *fakeStore) GetCampaign(context.Context) (core.Campaign, error) {
	if f.campaign == nil {
		return core.Campaign{}, core.ErrNotFound
	}
	return *f.campaign, nil
}

type fakeIssuer struct {
	mu     sync.Mutex
	issued map[int64]int
	fail   map[int64]bool
}

func (f *fakeIssuer) Issue(_ context.Context, userID int64, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[userID] {
		return "", errors.New("db down")
	}
	if f.issued == nil {
		f.issued = map[int64]int{}
	}
	f.issued[userID]++
	return "tok" + strings.Repeat("x", int(userID)), nil
}

func users(n int) []core.User {
	out := make([]core.User, n)
	for i := range out {
		out[i] = core.User{ID: int64(i + 1), Phone: "+1555000000" + string(rune('0'+i))}
	}
	return out
}

func newOrchestrator(st Store, iss TokenIssuer, prov provider.Provider) *Orchestrator {
	return NewOrchestrator(st, iss, prov, nil, Options{
		BaseURL:     "https://survey.example",
		ProviderQPS: 1000, ProviderBurst: 100,
		SendTimeout: time.Second,
	})
}

func TestDecide(t *testing.T) {
	cases := map[int]Kind{0: KindRegular, 1: KindRegular, 6: KindRegular, 7: KindWeekly, 8: KindRegular, 14: KindWeekly, 21: KindWeekly}
	for count, want := range cases {
		require.Equal(t, want, Decide(count), "count=%d", count)
	}
}

func TestRunSendsEveryUserAndIssuesTokens(t *testing.T) {
	st := &fakeStore{users: users(3), counts: map[int64]int{1: 0, 2: 7, 3: 13}}
	iss := &fakeIssuer{}
	prov := provider.NewDummy()

	sum, err := newOrchestrator(st, iss, prov).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Succeeded: 3, Total: 3, Weekly: 1}, sum)
	require.Equal(t, map[int64]int{1: 1, 2: 1, 3: 1}, iss.issued)

	sent := prov.Sent()
	require.Len(t, sent, 3)
	require.Contains(t, sent[0].Body, "https://survey.example/survey/tokx")
	require.NotContains(t, sent[0].Body, "/feedback/")
	require.Contains(t, sent[1].Body, "https://survey.example/feedback/2")
	require.Contains(t, sent[1].Body, "https://survey.example/survey/tokxx")
}

func TestRunPartialFailureDoesNotAbort(t *testing.T) {
	st := &fakeStore{
		users:    users(4),
		counts:   map[int64]int{},
		countErr: map[int64]error{2: errors.New("timeout")},
	}
	iss := &fakeIssuer{fail: map[int64]bool{3: true}}
	prov := provider.NewDummy()
	prov.Fail = func(to string) error {
		if to == users(4)[3].Phone {
			return errors.New("carrier down")
		}
		return nil
	}

	sum, err := newOrchestrator(st, iss, prov).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, sum.Total)
	require.Equal(t, 1, sum.Succeeded)
	require.Equal(t, 3, sum.Failed)
	require.Len(t, prov.Sent(), 1)
	require.Equal(t, users(4)[0].Phone, prov.Sent()[0].To)
}

func TestRunListFailureIsHardError(t *testing.T) {
	st := &fakeStore{listErr: errors.New("db down")}
	_, err := newOrchestrator(st, &fakeIssuer{}, provider.NewDummy()).Run(context.Background())
	require.Error(t, err)
}

func TestRunSkippedOutsideCampaign(t *testing.T) {
	day := func(s string) time.Time {
		d, err := time.Parse(core.DateLayout, s)
		require.NoError(t, err)
		return d
	}
	st := &fakeStore{users: users(2), campaign: &core.Campaign{StartDate: day("2026-04-01"), EndDate: day("2026-04-30")}}
	prov := provider.NewDummy()

	o := newOrchestrator(st, &fakeIssuer{}, prov)
	o.opt.Location, _ = time.LoadLocation("America/New_York")

	// 02:00 UTC on April 1st is still March 31st in New York
	o.WithClock(func() time.Time { return time.Date(2026, 4, 1, 2, 0, 0, 0, time.UTC) })
	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	require.True(t, sum.Skipped)
	require.Empty(t, prov.Sent())

	o.WithClock(func() time.Time { return time.Date(2026, 4, 1, 11, 0, 0, 0, time.UTC) })
	sum, err = o.Run(context.Background())
	require.NoError(t, err)
	require.False(t, sum.Skipped)
	require.Equal(t, 2, sum.Succeeded)
}

func TestLoadMessagesOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("regular: \"Check in: {{.SurveyURL}}\"\n"), 0o600))

	m, err := LoadMessages(path)
	require.NoError(t, err)
	body, err := m.Render(KindRegular, MessageData{SurveyURL: "https://s/survey/abc"})
	require.NoError(t, err)
	require.Equal(t, "Check in: https://s/survey/abc", body)

	weekly, err := m.Render(KindWeekly, MessageData{SurveyURL: "https://s/survey/abc", FeedbackURL: "https://s/feedback/9"})
	require.NoError(t, err)
	require.Contains(t, weekly, "https://s/feedback/9")

	reply, err := m.ParseFailure("+15551234567")
	require.NoError(t, err)
	require.Contains(t, reply, "three numbers")
}

func TestLoadMessagesErrors(t *testing.T) {
	_, err := LoadMessages(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("regular: \"{{.Nope\"\n"), 0o600))
	_, err = LoadMessages(path)
	require.Error(t, err)
}
