// Package dispatch sends the daily check-in SMS to every enrolled user.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Cypherspark/sms-survey/internal/core"
	"github.com/Cypherspark/sms-survey/internal/logging"
	"github.com/Cypherspark/sms-survey/internal/metrics"
	"github.com/Cypherspark/sms-survey/internal/provider"
)

// WeeklyEvery is the response count cadence that earns a weekly report.
const WeeklyEvery = 7

type Kind int

const (
	KindRegular Kind = iota
	KindWeekly
)

func (k Kind) String() string {
	if k == KindWeekly {
		return "weekly"
	}
	return "regular"
}

// Decide picks the message kind for a user with count stored responses.
func Decide(count int) Kind {
	if count > 0 && count%WeeklyEvery == 0 {
		return KindWeekly
	}
	return KindRegular
}

type Store interface {
	ListUsers(ctx context.Context) ([]core.User, error)
	CountResponses(ctx context.Context, userID int64) (int, error)
	GetCampaign(ctx context.Context) (core.Campaign, error)
}

type TokenIssuer interface {
	Issue(ctx context.Context, userID int64, validity time.Duration) (string, error)
}

type Options struct {
	BaseURL       string
	TokenValidity time.Duration
	ProviderQPS   float64
	ProviderBurst int
	SendTimeout   time.Duration
	// Location decides which calendar day the campaign window is checked against.
	Location *time.Location
}

// Summary reports one batch. Partial failure is not an error.
type Summary struct {
	Succeeded int  `json:"succeeded"`
	Total     int  `json:"total"`
	Weekly    int  `json:"weekly"`
	Failed    int  `json:"failed"`
	Skipped   bool `json:"skipped"`
}

type Orchestrator struct {
	store    Store
	tokens   TokenIssuer
	prov     provider.Provider
	messages *Messages
	limiter  *rate.Limiter
	opt      Options
	now      func() time.Time
}

func NewOrchestrator(store Store, tokens TokenIssuer, prov provider.Provider, messages *Messages, opt Options) *Orchestrator {
	if opt.ProviderQPS <= 0 {
		opt.ProviderQPS = 5
	}
	if opt.ProviderBurst <= 0 {
		opt.ProviderBurst = 1
	}
	if opt.SendTimeout <= 0 {
		opt.SendTimeout = 10 * time.Second
	}
	if opt.Location == nil {
		opt.Location = time.UTC
	}
	if messages == nil {
		messages = DefaultMessages()
	}
	return &Orchestrator{
		store:    store,
		tokens:   tokens,
		prov:     prov,
		messages: messages,
		limiter:  rate.NewLimiter(rate.Limit(opt.ProviderQPS), opt.ProviderBurst),
		opt:      opt,
		now:      time.Now,
	}
}

// WithClock replaces the wall clock. Used by tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Run sends one message to every enrolled user. Only failing to list users
// aborts the batch; per-user failures are logged and counted.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := o.now()
	defer func() { metrics.LastDispatch.Set(float64(start.Unix())) }()

	active, err := o.campaignActive(ctx, start)
	if err != nil {
		metrics.DispatchRuns.WithLabelValues("error").Inc()
		return Summary{}, err
	}
	if !active {
		logging.Log.Info("dispatch skipped: outside campaign window")
		metrics.DispatchRuns.WithLabelValues("skipped").Inc()
		return Summary{Skipped: true}, nil
	}

	users, err := o.store.ListUsers(ctx)
	if err != nil {
		metrics.DispatchRuns.WithLabelValues("error").Inc()
		return Summary{}, fmt.Errorf("list users: %w", err)
	}

	sum := Summary{Total: len(users)}
	for _, u := range users {
		if ctx.Err() != nil {
			sum.Failed += sum.Total - sum.Succeeded - sum.Failed
			break
		}
		kind, err := o.sendOne(ctx, u)
		if kind == KindWeekly {
			sum.Weekly++
		}
		if err != nil {
			sum.Failed++
			continue
		}
		sum.Succeeded++
	}

	result := "ok"
	if sum.Failed > 0 {
		result = "partial"
	}
	metrics.DispatchRuns.WithLabelValues(result).Inc()
	logging.WithFields(logrus.Fields{
		"total":     sum.Total,
		"succeeded": sum.Succeeded,
		"weekly":    sum.Weekly,
		"failed":    sum.Failed,
		"took":      o.now().Sub(start).String(),
	}).Info("dispatch finished")
	return sum, nil
}

func (o *Orchestrator) campaignActive(ctx context.Context, now time.Time) (bool, error) {
	c, err := o.store.GetCampaign(ctx)
	if errors.Is(err, core.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load campaign: %w", err)
	}
	return c.ActiveOn(now.In(o.opt.Location)), nil
}

func (o *Orchestrator) sendOne(ctx context.Context, u core.User) (Kind, error) {
	log := logging.WithFields(logrus.Fields{"user_id": u.ID, "phone": u.Phone})

	count, err := o.store.CountResponses(ctx, u.ID)
	if err != nil {
		log.WithError(err).Warn("dispatch: count responses")
		metrics.DispatchMessages.WithLabelValues(KindRegular.String(), "store_error").Inc()
		return KindRegular, err
	}
	kind := Decide(count)

	tok, err := o.tokens.Issue(ctx, u.ID, o.opt.TokenValidity)
	if err != nil {
		log.WithError(err).Warn("dispatch: issue token")
		metrics.DispatchMessages.WithLabelValues(kind.String(), "token_error").Inc()
		return kind, err
	}

	body, err := o.messages.Render(kind, MessageData{
		Phone:       u.Phone,
		SurveyURL:   o.opt.BaseURL + "/survey/" + tok,
		FeedbackURL: o.opt.BaseURL + "/feedback/" + strconv.FormatInt(u.ID, 10),
	})
	if err != nil {
		log.WithError(err).Error("dispatch: render message")
		metrics.DispatchMessages.WithLabelValues(kind.String(), "render_error").Inc()
		return kind, err
	}

	// global provider rate for this process
	if err := o.limiter.Wait(ctx); err != nil {
		metrics.DispatchMessages.WithLabelValues(kind.String(), "send_error").Inc()
		return kind, err
	}

	sctx, cancel := context.WithTimeout(ctx, o.opt.SendTimeout)
	defer cancel()
	began := time.Now()
	id, err := o.prov.Send(sctx, u.Phone, body)
	metrics.ProviderSendDuration.Observe(time.Since(began).Seconds())
	if err != nil {
		log.WithError(err).Warn("dispatch: send failed")
		metrics.DispatchMessages.WithLabelValues(kind.String(), "send_error").Inc()
		return kind, err
	}
	log.WithFields(logrus.Fields{"kind": kind.String(), "provider_id": id}).Info("dispatch: sent")
	metrics.DispatchMessages.WithLabelValues(kind.String(), "sent").Inc()
	return kind, nil
}
