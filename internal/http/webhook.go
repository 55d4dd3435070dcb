package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Cypherspark/sms-survey/internal/core"
	"github.com/Cypherspark/sms-survey/internal/logging"
	"github.com/Cypherspark/sms-survey/internal/metrics"
	"github.com/Cypherspark/sms-survey/internal/parser"
	"github.com/Cypherspark/sms-survey/internal/webhook"
)

const maxWebhookBody = 64 << 10

type inboundSMS struct {
	FromNumber string `json:"fromNumber"`
	Text       string `json:"text"`
	TextID     string `json:"textId"`
}

func decodeInbound(r *http.Request, body []byte) (inboundSMS, error) {
	var in inboundSMS
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		v, err := url.ParseQuery(string(body))
		if err != nil {
			return in, err
		}
		in = inboundSMS{FromNumber: v.Get("fromNumber"), Text: v.Get("text"), TextID: v.Get("textId")}
	} else if err := json.Unmarshal(body, &in); err != nil {
		return in, err
	}
	in.FromNumber = strings.TrimSpace(in.FromNumber)
	in.Text = strings.TrimSpace(in.Text)
	return in, nil
}

func (s *Server) smsWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		metrics.WebhookTotal.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, "bad_request", "cannot read body")
		return
	}

	auth := s.Policy.Check(r.Header, body)
	if !s.Policy.Admit(auth) {
		logging.WithFields(logrus.Fields{"auth": auth.String(), "remote": r.RemoteAddr}).Warn("webhook: rejected unauthenticated callback")
		s.recordWebhook(ctx, webhook.NewEntry("", "", "", auth, "unauthorized", now))
		metrics.WebhookTotal.WithLabelValues("unauthorized").Inc()
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	if auth == webhook.Unverified {
		logging.WithField("remote", r.RemoteAddr).Warn("webhook: accepting UNSIGNED callback (WEBHOOK_ALLOW_UNSIGNED=true)")
	}

	in, err := decodeInbound(r, body)
	if err != nil || in.FromNumber == "" || in.Text == "" {
		s.recordWebhook(ctx, webhook.NewEntry(in.FromNumber, in.Text, in.TextID, auth, "bad_request", now))
		metrics.WebhookTotal.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, "bad_request", "fromNumber and text are required")
		return
	}
	log := logging.WithFields(logrus.Fields{"from": in.FromNumber, "text_id": in.TextID})
	entry := func(outcome string) webhook.Entry {
		return webhook.NewEntry(in.FromNumber, in.Text, in.TextID, auth, outcome, now)
	}

	user, err := s.Store.UserByPhone(ctx, in.FromNumber)
	if errors.Is(err, core.ErrNotFound) {
		log.Warn("webhook: reply from unknown sender")
		s.recordWebhook(ctx, entry("unknown_sender"))
		metrics.WebhookTotal.WithLabelValues("unknown_sender").Inc()
		writeError(w, http.StatusBadRequest, "unknown_sender", "")
		return
	}
	if err != nil {
		log.WithError(err).Error("webhook: user lookup")
		s.recordWebhook(ctx, entry("error"))
		metrics.WebhookTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "internal", "")
		return
	}

	res, err := parser.Parse(in.Text)
	if err != nil {
		log.WithField("text", in.Text).Info("webhook: could not parse reply")
		s.recordWebhook(ctx, entry("parse_failure"))
		metrics.WebhookTotal.WithLabelValues("parse_failure").Inc()
		s.replyParseFailure(user.Phone)
		writeError(w, http.StatusBadRequest, "parse_failure", "expected three ratings from 1 to 10")
		return
	}

	resp, err := s.Store.InsertResponse(ctx, user.ID, ratingsOf(res), core.SourceSMS, now)
	if err != nil {
		log.WithError(err).Error("webhook: store response")
		s.recordWebhook(ctx, entry("error"))
		metrics.WebhookTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	s.publish(ctx, resp)

	outcome := "stored"
	if auth == webhook.Unverified {
		outcome = "unsigned_stored"
	}
	s.recordWebhook(ctx, entry(outcome))
	metrics.WebhookTotal.WithLabelValues(outcome).Inc()
	log.WithField("response_id", resp.ID).Info("webhook: response stored")
	writeJSON(w, http.StatusOK, map[string]any{"status": "stored", "response_id": resp.ID})
}

func ratingsOf(r parser.Result) core.Ratings {
	return core.Ratings{Joy: r.Joy, Achievement: r.Achievement, Meaning: r.Meaning, Influence: r.Influence}
}

func (s *Server) recordWebhook(ctx context.Context, e webhook.Entry) {
	if err := s.WebhookLog.Record(ctx, e); err != nil {
		logging.WithError(err).Warn("webhook: log entry dropped")
	}
}

func (s *Server) publish(ctx context.Context, resp core.Response) {
	if err := s.Events.ResponseRecorded(ctx, resp); err != nil {
		logging.WithError(err).WithField("response_id", resp.ID).Warn("event publish failed")
	}
}

// replyParseFailure asks the sender to resend in the expected format. It
// runs detached from the request and never affects the webhook status.
func (s *Server) replyParseFailure(phone string) {
	if s.Provider == nil {
		return
	}
	body, err := s.Messages.ParseFailure(phone)
	if err != nil {
		logging.WithError(err).Error("webhook: render parse failure reply")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.ReplyTimeout)
		defer cancel()
		if _, err := s.Provider.Send(ctx, phone, body); err != nil {
			logging.WithError(err).WithField("to", phone).Warn("webhook: parse failure reply not sent")
		}
	}()
}
