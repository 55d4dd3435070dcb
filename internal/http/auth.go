package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/Cypherspark/sms-survey/internal/adminauth"
	"github.com/Cypherspark/sms-survey/internal/logging"
)

type ctxKey int

const adminKey ctxKey = iota

// adminOnly requires a valid admin bearer token. With no secret configured
// the admin API is closed.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminSecret == "" {
			writeError(w, http.StatusServiceUnavailable, "admin_disabled", "ADMIN_JWT_SECRET is not configured")
			return
		}
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		claims, err := adminauth.Verify(s.AdminSecret, s.AdminIssuer, strings.TrimSpace(raw))
		if err != nil {
			logging.WithError(err).Debug("admin: token rejected")
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		ctx := context.WithValue(r.Context(), adminKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func adminFrom(ctx context.Context) string {
	s, _ := ctx.Value(adminKey).(string)
	return s
}
