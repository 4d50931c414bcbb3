package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"bindu/internal/authz"
	"bindu/internal/scheduler"
	"bindu/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := store.NewMemory()
	sched := scheduler.NewMemory(10)
	manager := NewManager(s, sched, nil, true)
	return NewServer(manager, nil)
}

func rpcCall(t *testing.T, srv *Server, body string) Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestServeHTTPRejectsNonPost(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeHTTPMalformedJSON(t *testing.T) {
	srv := newTestServer(t)
	resp := rpcCall(t, srv, `{"jsonrpc":"2.0",`)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeJSONParseError, resp.Error.Code)
}

func TestServeHTTPUnknownMethod(t *testing.T) {
	srv := newTestServer(t)
	resp := rpcCall(t, srv, `{"jsonrpc":"2.0","id":1,"method":"does/not-exist"}`)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestServeHTTPMessageSendHappyPath(t *testing.T) {
	srv := newTestServer(t)
	resp := rpcCall(t, srv, `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"role":"user","content":[{"type":"text","text":"hi"}]}}}`)
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Result)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "submitted", result["state"])
}

func TestServeHTTPMessageSendMissingContentIsInvalidParams(t *testing.T) {
	srv := newTestServer(t)
	resp := rpcCall(t, srv, `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"role":"user"}}}`)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestServeHTTPTasksGetRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	sendResp := rpcCall(t, srv, `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"role":"user","content":[{"type":"text","text":"hi"}]}}}`)
	result := sendResp.Result.(map[string]any)
	taskID := result["id"].(string)

	getResp := rpcCall(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tasks/get","params":{"task_id":"`+taskID+`"}}`)
	require.Nil(t, getResp.Error)
	got := getResp.Result.(map[string]any)
	require.Equal(t, taskID, got["id"])
}

func TestServeHTTPTasksGetNotFound(t *testing.T) {
	srv := newTestServer(t)
	resp := rpcCall(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tasks/get","params":{"task_id":"missing"}}`)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeTaskNotFound, resp.Error.Code)
}

func TestServeHTTPInvalidEnvelope(t *testing.T) {
	srv := newTestServer(t)
	resp := rpcCall(t, srv, `{"method":"tasks/list"}`)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)
}

type denyAllGate struct{}

func (denyAllGate) Check(ctx context.Context, req authz.Request) error {
	return errors.New("denied: " + req.Action)
}

func TestServeHTTPPolicyGateDeniesRequest(t *testing.T) {
	s := store.NewMemory()
	sched := scheduler.NewMemory(10)
	manager := NewManager(s, sched, nil, true)
	srv := NewServer(manager, nil, WithPolicyGate(denyAllGate{}))

	resp := rpcCall(t, srv, `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"role":"user","content":[{"type":"text","text":"hi"}]}}}`)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidToken, resp.Error.Code)
}

func TestServeHTTPAllowAllPolicyGateAllowsRequest(t *testing.T) {
	s := store.NewMemory()
	sched := scheduler.NewMemory(10)
	manager := NewManager(s, sched, nil, true)
	srv := NewServer(manager, nil, WithPolicyGate(authz.AllowAll{}))

	resp := rpcCall(t, srv, `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"role":"user","content":[{"type":"text","text":"hi"}]}}}`)
	require.Nil(t, resp.Error)
}
