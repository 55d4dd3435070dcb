// Package app wires the survey components from configuration. Each binary
// under cmd/ builds one App and uses the parts it needs.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Cypherspark/sms-survey/internal/config"
	"github.com/Cypherspark/sms-survey/internal/core"
	"github.com/Cypherspark/sms-survey/internal/db"
	"github.com/Cypherspark/sms-survey/internal/dispatch"
	"github.com/Cypherspark/sms-survey/internal/events"
	"github.com/Cypherspark/sms-survey/internal/feedback"
	httpapi "github.com/Cypherspark/sms-survey/internal/http"
	"github.com/Cypherspark/sms-survey/internal/logging"
	"github.com/Cypherspark/sms-survey/internal/provider"
	"github.com/Cypherspark/sms-survey/internal/scheduler"
	"github.com/Cypherspark/sms-survey/internal/token"
	"github.com/Cypherspark/sms-survey/internal/webhook"
)

const webhookLogKey = "sms-survey:webhook-log"

type App struct {
	Cfg      *config.Config
	Location *time.Location

	DB         *db.DB
	Store      *core.Store
	Tokens     *token.Manager
	Feedback   *feedback.Engine
	Provider   provider.Provider
	Messages   *dispatch.Messages
	Dispatcher *dispatch.Orchestrator
	Events     events.Publisher
	WebhookLog webhook.Log
	Redis      *redis.Client
}

// New connects to Postgres, applies migrations and builds every component.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	loc, _ := cfg.Location()

	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{Cfg: cfg, Location: loc, DB: d, Store: core.NewStore(d)}
	a.Tokens = token.NewManager(a.Store)
	a.Feedback = feedback.NewEngine(a.Store)

	if a.Provider, err = provider.FromConfig(cfg); err != nil {
		a.Close()
		return nil, err
	}
	if a.Messages, err = dispatch.LoadMessages(cfg.MessagesFile); err != nil {
		a.Close()
		return nil, err
	}
	a.Dispatcher = dispatch.NewOrchestrator(a.Store, a.Tokens, a.Provider, a.Messages, dispatch.Options{
		BaseURL:       cfg.PublicBaseURL,
		TokenValidity: cfg.TokenValidity,
		ProviderQPS:   cfg.ProviderQPS,
		ProviderBurst: cfg.ProviderBurst,
		SendTimeout:   cfg.SendTimeout,
		Location:      loc,
	})

	a.Events = events.New(cfg.KafkaBrokers, cfg.KafkaTopic)

	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			logging.WithError(err).Warn("redis unreachable at startup; webhook log writes will fail until it recovers")
		}
		a.WebhookLog = webhook.NewRedisLog(a.Redis, webhookLogKey, cfg.WebhookLogSize)
	} else {
		a.WebhookLog = webhook.NewRingLog(cfg.WebhookLogSize)
	}

	logging.WithFields(map[string]interface{}{
		"provider":    cfg.SMSProvider,
		"timezone":    loc.String(),
		"dispatch_at": cfg.DispatchTime,
		"kafka":       len(cfg.KafkaBrokers) > 0,
		"redis":       a.Redis != nil,
	}).Info("app initialised")
	return a, nil
}

// HTTPServer builds the HTTP surface.
func (a *App) HTTPServer() *httpapi.Server {
	if a.Cfg.WebhookAllowUnsigned {
		logging.Log.Warn("WEBHOOK_ALLOW_UNSIGNED=true: unsigned webhook callbacks will be accepted")
	}
	if a.Cfg.WebhookSecret == "" {
		logging.Log.Warn("WEBHOOK_SECRET is empty: signed webhook callbacks cannot verify")
	}
	d := httpapi.Deps{
		Store:        a.Store,
		Tokens:       a.Tokens,
		Feedback:     a.Feedback,
		Dispatcher:   a.Dispatcher,
		Provider:     a.Provider,
		Messages:     a.Messages,
		Events:       a.Events,
		WebhookLog:   a.WebhookLog,
		Policy:       webhook.Policy{Secret: a.Cfg.WebhookSecret, AllowUnsigned: a.Cfg.WebhookAllowUnsigned},
		Location:     a.Location,
		AdminSecret:  a.Cfg.AdminJWTSecret,
		AdminIssuer:  a.Cfg.AdminJWTIssuer,
		ReplyTimeout: a.Cfg.SendTimeout,
	}
	if a.Redis != nil {
		d.Readiness = map[string]httpapi.ReadinessCheck{
			"redis": func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
		}
	}
	return httpapi.NewServer(d)
}

// Scheduler builds the daily dispatch trigger. The caller starts and stops it.
func (a *App) Scheduler() *scheduler.Scheduler {
	hour, minute, _ := a.Cfg.DispatchClock()
	return scheduler.New(func(ctx context.Context) error {
		_, err := a.Dispatcher.Run(ctx)
		return err
	}, scheduler.Options{Hour: hour, Minute: minute, Location: a.Location})
}

func (a *App) Close() {
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			logging.WithError(err).Warn("close event publisher")
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	a.DB.Close()
}
