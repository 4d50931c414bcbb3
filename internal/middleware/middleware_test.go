package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bindu/internal/auth"
	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, did string) string {
	t.Helper()
	claims := auth.Claims{
		DID: did,
		RegisteredClaims: jwt.RegisteredClaims{},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestExtractBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	if got := extractBearerToken(req); got != "abc.def.ghi" {
		t.Fatalf("expected bearer token, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := extractBearerToken(req); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}

func TestAuthenticatorDisabledPassesThrough(t *testing.T) {
	a := NewAuthenticator(auth.NewVerifier(auth.Config{}))
	h := a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
}

func TestAuthenticatorRequireAcceptsValidToken(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	v := auth.NewVerifier(auth.Config{Secret: []byte(secret)})
	a := NewAuthenticator(v)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := GetDID(r.Context()); got != "did:example:123" {
			t.Fatalf("expected did in context, got %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	h := a.Require(next)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, secret, "did:example:123"))

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
}

func TestAuthenticatorRequireRejectsMissingToken(t *testing.T) {
	v := auth.NewVerifier(auth.Config{Secret: []byte("0123456789abcdef0123456789abcdef")})
	a := NewAuthenticator(v)
	h := a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "missing bearer token") {
		t.Fatalf("expected missing bearer token message, got %q", rr.Body.String())
	}
}

func TestWithRequestContextSetsHeaders(t *testing.T) {
	h := WithRequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Fatalf("expected request id in context")
		}
		if GetTraceID(r.Context()) == "" {
			t.Fatalf("expected trace id in context")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.ServeHTTP(rr, req)

	requestID := rr.Header().Get("X-Request-Id")
	traceID := rr.Header().Get("X-Trace-Id")
	if requestID == "" {
		t.Fatalf("expected response X-Request-Id header")
	}
	if traceID != requestID {
		t.Fatalf("expected trace id to default to request id, got request=%q trace=%q", requestID, traceID)
	}
}
