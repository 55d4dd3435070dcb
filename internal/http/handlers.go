package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Cypherspark/sms-survey/internal/core"
	"github.com/Cypherspark/sms-survey/internal/dispatch"
	"github.com/Cypherspark/sms-survey/internal/events"
	"github.com/Cypherspark/sms-survey/internal/feedback"
	"github.com/Cypherspark/sms-survey/internal/provider"
	"github.com/Cypherspark/sms-survey/internal/token"
	"github.com/Cypherspark/sms-survey/internal/webhook"
)

// Deps is everything the HTTP surface talks to.
type Deps struct {
	Store      *core.Store
	Tokens     *token.Manager
	Feedback   *feedback.Engine
	Dispatcher *dispatch.Orchestrator
	Provider   provider.Provider
	Messages   *dispatch.Messages
	Events     events.Publisher
	WebhookLog webhook.Log
	Policy     webhook.Policy

	// Location renders timestamps and decides "today" for campaign checks.
	Location *time.Location

	AdminSecret string
	AdminIssuer string

	// Readiness adds named checks to /readyz beyond the database ping.
	Readiness map[string]ReadinessCheck

	// ReplyTimeout bounds the best-effort parse-failure reply SMS.
	ReplyTimeout time.Duration

	Now func() time.Time
}

type Server struct {
	Deps
}

func NewServer(d Deps) *Server {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Events == nil {
		d.Events = events.Noop{}
	}
	if d.WebhookLog == nil {
		d.WebhookLog = webhook.NewRingLog(200)
	}
	if d.Messages == nil {
		d.Messages = dispatch.DefaultMessages()
	}
	if d.ReplyTimeout <= 0 {
		d.ReplyTimeout = 10 * time.Second
	}
	if d.Policy.Now == nil {
		d.Policy.Now = d.Now
	}
	return &Server{Deps: d}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(instrument)

	s.mountHealth(r)
	s.mountMetrics(r)
	s.mountDocs(r)

	r.Post("/sms_webhook", s.smsWebhook)
	r.Post("/webhooks/sms", s.smsWebhook)

	r.Get("/survey/{token}", s.surveyForm)
	r.Post("/survey/{token}", s.surveySubmit)
	r.Get("/survey/{token}/thanks", s.surveyThanks)

	r.Get("/feedback/{userID}", s.getFeedback)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.adminOnly)
		r.Post("/users", s.createUser)
		r.Get("/users", s.listUsers)
		r.Delete("/users/{id}", s.deleteUser)
		r.Get("/campaign", s.getCampaign)
		r.Put("/campaign", s.putCampaign)
		r.Get("/responses", s.listResponses)
		r.Post("/responses", s.addResponse)
		r.Post("/dispatch", s.runDispatch)
		r.Get("/stats", s.getStats)
		r.Get("/webhook-log", s.getWebhookLog)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	body := map[string]string{"error": code}
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, status, body)
}

const displayLayout = "2006-01-02 15:04 MST"

func (s *Server) local(t time.Time) string {
	return t.In(s.Location).Format(displayLayout)
}
