package a2a

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"bindu/internal/store"
)

func newTestDiscoveryHandler() *DiscoveryHandler {
	reg := NewStaticRegistry([]Skill{{ID: "chat", Name: "Chat"}}, nil)
	cfg := DiscoveryConfig{
		BaseURL:     "https://agent.example.com",
		Name:        "test-agent",
		Description: "a test agent",
		Version:     "1.0.0",
		DID:         "did:example:123",
		PushEnabled: true,
	}
	return NewDiscoveryHandler(cfg, reg)
}

func TestServeAgentCardStableAcrossRequests(t *testing.T) {
	h := newTestDiscoveryHandler()

	rec1 := httptest.NewRecorder()
	h.ServeAgentCard(rec1, httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil))
	rec2 := httptest.NewRecorder()
	h.ServeAgentCard(rec2, httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil))

	require.Equal(t, http.StatusOK, rec1.Code)
	require.JSONEq(t, rec1.Body.String(), rec2.Body.String())

	var card AgentCard
	require.NoError(t, json.Unmarshal(rec1.Body.Bytes(), &card))
	require.Equal(t, "test-agent", card.Name)
	require.Equal(t, "did:example:123", card.DID)
	require.Len(t, card.Skills, 1)
}

func TestServeDIDResolveMatchesSelf(t *testing.T) {
	h := newTestDiscoveryHandler()
	body, _ := json.Marshal(map[string]string{"did": "did:example:123"})
	rec := httptest.NewRecorder()
	h.ServeDIDResolve(rec, httptest.NewRequest(http.MethodPost, "/did/resolve", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServeDIDResolveRejectsForeignDID(t *testing.T) {
	h := newTestDiscoveryHandler()
	body, _ := json.Marshal(map[string]string{"did": "did:example:someone-else"})
	rec := httptest.NewRecorder()
	h.ServeDIDResolve(rec, httptest.NewRequest(http.MethodPost, "/did/resolve", bytes.NewReader(body)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheckerReportsHealthyWithDefaultChecks(t *testing.T) {
	s := store.NewMemory()
	checker := NewHealthChecker(s, nil, nil)
	rec := httptest.NewRecorder()
	checker.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.True(t, status.Storage)
	require.True(t, status.Scheduler)
	require.True(t, status.Worker)
}

func TestHealthCheckerReflectsComponentChecks(t *testing.T) {
	s := store.NewMemory()
	checker := NewHealthChecker(s, func() bool { return false }, func() bool { return true })
	rec := httptest.NewRecorder()
	checker.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
