package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Cypherspark/sms-survey/internal/feedback"
	"github.com/Cypherspark/sms-survey/internal/logging"
	"github.com/Cypherspark/sms-survey/internal/metrics"
)

type feedbackResponse struct {
	feedback.Report
	LatestAtLocal string `json:"latest_at_local"`
}

// getFeedback serves the rolling report. The URL carries only the user id;
// see DESIGN.md on the trust boundary this implies.
func (s *Server) getFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		metrics.FeedbackReports.WithLabelValues("unknown_user").Inc()
		writeError(w, http.StatusNotFound, "user_not_found", "")
		return
	}
	rep, err := s.Feedback.Compute(r.Context(), id)
	switch {
	case errors.Is(err, feedback.ErrUnknownUser):
		metrics.FeedbackReports.WithLabelValues("unknown_user").Inc()
		writeError(w, http.StatusNotFound, "user_not_found", "")
		return
	case errors.Is(err, feedback.ErrInsufficientData):
		metrics.FeedbackReports.WithLabelValues("insufficient_data").Inc()
		writeError(w, http.StatusNotFound, "insufficient_data",
			"Keep checking in! Your report appears once you have at least 3 responses.")
		return
	case err != nil:
		logging.WithError(err).WithField("user_id", id).Error("feedback: compute")
		metrics.FeedbackReports.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "internal", "")
		return
	}
	metrics.FeedbackReports.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, feedbackResponse{Report: rep, LatestAtLocal: s.local(rep.Latest.CreatedAt)})
}
