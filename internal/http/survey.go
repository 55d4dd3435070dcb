package httpapi

import (
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Cypherspark/sms-survey/internal/core"
	"github.com/Cypherspark/sms-survey/internal/logging"
	"github.com/Cypherspark/sms-survey/internal/metrics"
	"github.com/Cypherspark/sms-survey/internal/parser"
	"github.com/Cypherspark/sms-survey/internal/token"
)

//go:embed templates/*.html
var templatesFS embed.FS

var views = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

type formView struct {
	Title     string
	Token     string
	ExpiresAt string
	Error     string

	Joy, Achievement, Meaning string
	Influence                 string
}

type errorView struct {
	Title   string
	Heading string
	Message string
}

var tokenErrorViews = map[string]struct {
	status  int
	heading string
	message string
}{
	token.KindUnknown:     {http.StatusNotFound, "Link not found", "This survey link is not valid. Please use the link from your most recent message."},
	token.KindAlreadyUsed: {http.StatusGone, "Already submitted", "You've already completed this check-in. Thanks! A new link arrives with tomorrow's message."},
	token.KindExpired:     {http.StatusGone, "Link expired", "This survey link has expired. A new link arrives with tomorrow's message."},
}

func render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.ExecuteTemplate(w, name, data); err != nil {
		logging.WithError(err).WithField("view", name).Error("render view")
	}
}

// renderTokenError shows the error view for a token error and reports
// whether err was one.
func renderTokenError(w http.ResponseWriter, err error) bool {
	kind := token.Kind(err)
	v, ok := tokenErrorViews[kind]
	if !ok {
		return false
	}
	render(w, v.status, "error.html", errorView{Title: v.heading, Heading: v.heading, Message: v.message})
	return true
}

func renderInternal(w http.ResponseWriter) {
	render(w, http.StatusInternalServerError, "error.html", errorView{
		Title: "Something went wrong", Heading: "Something went wrong", Message: "Please try again in a moment.",
	})
}

func (s *Server) surveyForm(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	info, err := s.Tokens.Validate(r.Context(), tok)
	if err != nil {
		if !renderTokenError(w, err) {
			logging.WithError(err).Error("survey: validate token")
			renderInternal(w)
		}
		return
	}
	render(w, http.StatusOK, "form.html", formView{Title: "Daily check-in", Token: tok, ExpiresAt: s.local(info.ExpiresAt)})
}

func (s *Server) surveySubmit(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	info, err := s.Tokens.Validate(r.Context(), tok)
	if err != nil {
		metrics.SurveySubmissions.WithLabelValues(surveyOutcome(err)).Inc()
		if !renderTokenError(w, err) {
			logging.WithError(err).Error("survey: validate token")
			renderInternal(w)
		}
		return
	}

	if err := r.ParseForm(); err != nil {
		metrics.SurveySubmissions.WithLabelValues("invalid").Inc()
		render(w, http.StatusBadRequest, "form.html", formView{Title: "Daily check-in", Token: tok, Error: "Could not read the form."})
		return
	}
	view := formView{
		Title:       "Daily check-in",
		Token:       tok,
		ExpiresAt:   s.local(info.ExpiresAt),
		Joy:         r.PostForm.Get("joy"),
		Achievement: r.PostForm.Get("achievement"),
		Meaning:     r.PostForm.Get("meaning"),
		Influence:   r.PostForm.Get("influence"),
	}
	ratings, msg := ratingsFromForm(view)
	if msg != "" {
		metrics.SurveySubmissions.WithLabelValues("invalid").Inc()
		view.Error = msg
		render(w, http.StatusBadRequest, "form.html", view)
		return
	}

	resp, err := s.Tokens.Redeem(r.Context(), tok, ratings)
	if err != nil {
		metrics.SurveySubmissions.WithLabelValues(surveyOutcome(err)).Inc()
		if !renderTokenError(w, err) {
			logging.WithError(err).Error("survey: redeem token")
			renderInternal(w)
		}
		return
	}
	s.publish(r.Context(), resp)
	metrics.SurveySubmissions.WithLabelValues("ok").Inc()
	logging.WithField("user_id", resp.UserID).WithField("response_id", resp.ID).Info("survey: response stored")
	http.Redirect(w, r, "/survey/"+tok+"/thanks", http.StatusSeeOther)
}

func (s *Server) surveyThanks(w http.ResponseWriter, _ *http.Request) {
	render(w, http.StatusOK, "thanks.html", map[string]string{"Title": "Thank you"})
}

func ratingsFromForm(v formView) (core.Ratings, string) {
	var out core.Ratings
	fields := []struct {
		name string
		raw  string
		dst  *int
	}{
		{"Joy", v.Joy, &out.Joy},
		{"Achievement", v.Achievement, &out.Achievement},
		{"Meaning", v.Meaning, &out.Meaning},
	}
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f.raw))
		if err != nil || !parser.ValidRating(n) {
			return core.Ratings{}, f.name + " must be a whole number from 1 to 10."
		}
		*f.dst = n
	}
	out.Influence = strings.TrimSpace(v.Influence)
	return out, ""
}

func surveyOutcome(err error) string {
	if k := token.Kind(err); k != "" {
		return k
	}
	return "error"
}
