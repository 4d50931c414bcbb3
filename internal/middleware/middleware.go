package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"log/slog"

	"bindu/internal/auth"
	"bindu/internal/logger"
)

type ctxKey string

const (
	KeyRequestID ctxKey = "request_id"
	KeyTraceID   ctxKey = "trace_id"
	KeyDID       ctxKey = "did"
)

// Authenticator optionally gates requests on a DID-bearer token, per the
// runtime's "cryptographic identity" auth boundary. When no verifier secret
// is configured, Require passes every request through unauthenticated.
type Authenticator struct {
	verifier *auth.Verifier
	log      *slog.Logger
}

// NewAuthenticator wraps a token verifier. A verifier with Enabled()==false
// makes Require a no-op, which is the default for local/dev deployments.
func NewAuthenticator(verifier *auth.Verifier) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		log:      logger.WithComponent("middleware"),
	}
}

// Require validates the bearer token on every request and injects the
// caller's DID into the request context. If no verifier is configured it
// passes requests through unchanged.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.verifier == nil || !a.verifier.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			a.log.Warn("authentication failed: missing bearer token", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			writeUnauthorized(w, "missing bearer token")
			return
		}

		claims, err := a.verifier.ValidateToken(token)
		if err != nil {
			a.log.Warn("authentication failed", "error", err, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			writeUnauthorized(w, "invalid bearer token")
			return
		}

		a.log.Debug("authentication successful", "did", claims.DID, "path", r.URL.Path)
		ctx := context.WithValue(r.Context(), KeyDID, claims.DID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"message":"` + message + `","code":401}}`))
}

// WithRequestContext stamps every request with a request ID and trace ID,
// generating one if the caller didn't supply it.
func WithRequestContext(next http.Handler) http.Handler {
	log := logger.WithComponent("middleware")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = newID()
		}
		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = reqID
		}

		w.Header().Set("X-Request-Id", reqID)
		w.Header().Set("X-Trace-Id", traceID)

		log.Debug("request context initialized", "request_id", reqID, "trace_id", traceID, "path", r.URL.Path, "method", r.Method)

		ctx := context.WithValue(r.Context(), KeyRequestID, reqID)
		ctx = context.WithValue(ctx, KeyTraceID, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(KeyRequestID).(string)
	return v
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(KeyTraceID).(string)
	return v
}

// GetDID retrieves the authenticated caller's DID, if any.
func GetDID(ctx context.Context) string {
	v, _ := ctx.Value(KeyDID).(string)
	return v
}

func extractBearerToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
