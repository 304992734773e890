package http

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"smart-stick/tracker/internal/auth"
	"smart-stick/tracker/internal/log"
)

type DeviceValidator interface {
	Validate(apiKey string) bool
}

type TokenValidator interface {
	Validate(token string) (auth.Principal, error)
}

type AuthMiddleware struct {
	devices DeviceValidator
	tokens  TokenValidator
}

func NewAuthMiddleware(devices DeviceValidator, tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{devices: devices, tokens: tokens}
}

// Device guards stick endpoints with the shared secret in header.
func (m *AuthMiddleware) Device(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.devices.Validate(r.Header.Get(header)) {
				log.Warn("Rejected device request", "path", r.URL.Path, "remote", r.RemoteAddr)
				writeError(w, http.StatusUnauthorized, "Unauthorized: Invalid API Key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Bearer guards companion endpoints and puts the token's principal in the
// request context.
func (m *AuthMiddleware) Bearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "No token, authorization denied")
			return
		}

		principal, err := m.tokens.Validate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Token is not valid")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the logger.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}
