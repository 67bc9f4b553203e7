package gateway

import (
	"log"
	"net/http"
	"strings"

	"github.com/pquerna/otp/totp"

	"sensortrend/internal/logger"
)

// AdminOTPHeader carries the TOTP code for admin endpoints.
const AdminOTPHeader = "X-Admin-OTP"

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+AdminOTPHeader)
}

// WithMiddleware applies security headers, CORS and a request id to every
// request. OPTIONS preflights are answered directly.
func WithMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		SetCORS(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logger.NewRequestID("req")
		}
		h.Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// RequireTOTP guards next with a TOTP code in the X-Admin-OTP header. An
// empty secret disables the guard.
func RequireTOTP(secret string, next http.HandlerFunc) http.HandlerFunc {
	if secret == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimSpace(r.Header.Get(AdminOTPHeader))
		if code == "" || !totp.Validate(code, secret) {
			log.Printf("[gateway] rejected admin request %s %s (request %s)", r.Method, r.URL.Path, logger.RequestID(r.Context()))
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing or invalid " + AdminOTPHeader, Kind: "unauthorized"})
			return
		}
		next(w, r)
	}
}
