package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/Cypherspark/sms-survey/internal/core"
	"github.com/Cypherspark/sms-survey/internal/logging"
	"github.com/Cypherspark/sms-survey/internal/parser"
)

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "")
		return
	}
	phone := strings.TrimSpace(in.Phone)
	if err := core.ValidatePhone(phone); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_phone", err.Error())
		return
	}
	u, err := s.Store.CreateUser(r.Context(), phone)
	if errors.Is(err, core.ErrDuplicatePhone) {
		writeError(w, http.StatusConflict, "duplicate_phone", "phone number already enrolled")
		return
	}
	if err != nil {
		logging.WithError(err).Error("admin: create user")
		writeError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	logging.WithFields(logrus.Fields{"user_id": u.ID, "by": adminFrom(r.Context())}).Info("admin: user enrolled")
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Store.ListUsers(r.Context())
	if err != nil {
		logging.WithError(err).Error("admin: list users")
		writeError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	if users == nil {
		users = []core.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "user_not_found", "")
		return
	}
	err = s.Store.DeleteUser(r.Context(), id)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user_not_found", "")
		return
	}
	if err != nil {
		logging.WithError(err).Error("admin: delete user")
		writeError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	logging.WithFields(logrus.Fields{"user_id": id, "by": adminFrom(r.Context())}).Info("admin: user deleted")
	w.WriteHeader(http.StatusNoContent)
}

type campaignView struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	ActiveNow bool   `json:"active_now"`
}

func (s *Server) campaignView(c core.Campaign) campaignView {
	return campaignView{
		StartDate: c.StartDate.Format(core.DateLayout),
		EndDate:   c.EndDate.Format(core.DateLayout),
		ActiveNow: c.ActiveOn(s.Now().In(s.Location)),
	}
}

func (s *Server) getCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.Store.GetCampaign(r.Context())
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no_campaign", "no campaign configured; dispatch runs every day")
		return
	}
	if err != nil {
		logging.WithError(err).Error("admin: get campaign")
		writeError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	writeJSON(w, http.StatusOK, s.campaignView(c))
}

func (s *Server) putCampaign(w http.ResponseWriter, r *http.Request) {
	var in struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "")
		return
	}
	c, err := core.ParseCampaign(in.StartDate, in.EndDate, s.Now().In(s.Location))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_campaign", err.Error())
		return
	}
	if err := s.Store.SetCampaign(r.Context(), c); err != nil {
		logging.WithError(err).Error("admin: set campaign")
		writeError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	logging.WithFields(logrus.Fields{"start": in.StartDate, "end": in.EndDate, "by": adminFrom(r.Context())}).Info("admin: campaign set")
	writeJSON(w, http.StatusOK, s.campaignView(c))
}

type responseView struct {
	core.Response
	CreatedAtLocal string `json:"created_at_local"`
}

func (s *Server) listResponses(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	rs, err := s.Store.ListResponses(r.Context(), limit, offset)
	if err != nil {
		logging.WithError(err).Error("admin: list responses")
		writeError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	items := make([]responseView, 0, len(rs))
	for _, resp := range rs {
		items = append(items, responseView{Response: resp, CreatedAtLocal: s.local(resp.CreatedAt)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "limit": limit, "offset": offset})
}

// addResponse records a reply received out of band, e.g. read out over the
// phone. The text goes through the same parser as SMS replies.
func (s *Server) addResponse(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Phone string `json:"phone"`
		Text  string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Phone == "" || in.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "phone and text are required")
		return
	}
	user, err := s.Store.UserByPhone(r.Context(), strings.TrimSpace(in.Phone))
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user_not_found", "")
		return
	}
	if err != nil {
		logging.WithError(err).Error("admin: user lookup")
		writeError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	res, err := parser.Parse(in.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parse_failure", "expected three ratings from 1 to 10")
		return
	}
	resp, err := s.Store.InsertResponse(r.Context(), user.ID, ratingsOf(res), core.SourceAdmin, s.Now())
	if err != nil {
		logging.WithError(err).Error("admin: insert response")
		writeError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	s.publish(r.Context(), resp)
	writeJSON(w, http.StatusCreated, responseView{Response: resp, CreatedAtLocal: s.local(resp.CreatedAt)})
}

// runDispatch sends the daily message now, outside the schedule.
func (s *Server) runDispatch(w http.ResponseWriter, r *http.Request) {
	if s.Dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "dispatch_unavailable", "")
		return
	}
	logging.WithField("by", adminFrom(r.Context())).Info("admin: manual dispatch")
	sum, err := s.Dispatcher.Run(r.Context())
	if err != nil {
		logging.WithError(err).Error("admin: dispatch")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.Store.Stats(r.Context())
	if err != nil {
		logging.WithError(err).Error("admin: stats")
		writeError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) getWebhookLog(w http.ResponseWriter, r *http.Request) {
	n := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if x, err := strconv.Atoi(v); err == nil && x > 0 {
			n = x
		}
	}
	entries, err := s.WebhookLog.Recent(r.Context(), n)
	if err != nil {
		logging.WithError(err).Error("admin: webhook log")
		writeError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}
