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

func newTestNegotiationHandler() (*NegotiationHandler, store.Storage) {
	reg := NewStaticRegistry(
		[]Skill{
			{ID: "summarize", Name: "Summarize", Description: "Summarizes text", Tags: []string{"summary", "text"}},
		},
		nil,
	)
	s := store.NewMemory()
	return NewNegotiationHandler(reg, s, nil, []string{"text"}, []string{"text"}), s
}

func postNegotiation(h *NegotiationHandler, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/negotiation", bytes.NewReader(raw))
	h.ServeNegotiation(rec, req)
	return rec
}

func TestNegotiationRequiresTaskSummary(t *testing.T) {
	h, _ := newTestNegotiationHandler()
	rec := postNegotiation(h, map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNegotiationAcceptsMatchingSkill(t *testing.T) {
	h, _ := newTestNegotiationHandler()
	rec := postNegotiation(h, NegotiationRequest{TaskSummary: "please summarize this document"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result NegotiationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Accepted)
	require.NotEmpty(t, result.SkillMatches)
	require.Greater(t, result.Score, 0.0)
}

func TestNegotiationRejectsUnmatchedSkill(t *testing.T) {
	h, _ := newTestNegotiationHandler()
	rec := postNegotiation(h, NegotiationRequest{TaskSummary: "pilot a spacecraft to mars"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result NegotiationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.False(t, result.Accepted)
	require.NotEmpty(t, result.RejectionReason)
}

func TestNegotiationRejectsOversizedSummary(t *testing.T) {
	h, _ := newTestNegotiationHandler()
	big := make([]byte, 10001)
	for i := range big {
		big[i] = 'a'
	}
	rec := postNegotiation(h, NegotiationRequest{TaskSummary: string(big)})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNegotiationRejectsMalformedJSON(t *testing.T) {
	h, _ := newTestNegotiationHandler()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/negotiation", bytes.NewReader([]byte("not json")))
	h.ServeNegotiation(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
