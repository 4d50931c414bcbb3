package cedar

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPolicy = `permit(
    principal == A2A::Agent::"logistics-optimizer",
    action == A2A::Action::"message/send",
    resource
);`

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.cedar")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestPDP_Authorize(t *testing.T) {
	path := writePolicy(t, testPolicy)
	pdp, err := NewPDP(path)
	require.NoError(t, err)

	t.Run("trusted agent can submit task", func(t *testing.T) {
		decision, err := pdp.Authorize(context.Background(), AuthorizationRequest{
			Principal: "logistics-optimizer",
			Action:    "message/send",
			Resource:  "task-123",
		})
		require.NoError(t, err)
		assert.Equal(t, "Allow", decision.Decision)
	})

	t.Run("untrusted agent denied", func(t *testing.T) {
		decision, err := pdp.Authorize(context.Background(), AuthorizationRequest{
			Principal: "suspicious-agent",
			Action:    "message/send",
			Resource:  "task-123",
		})
		require.NoError(t, err)
		assert.Equal(t, "Deny", decision.Decision)
	})

	t.Run("trusted agent on an action the policy doesn't grant is denied", func(t *testing.T) {
		decision, err := pdp.Authorize(context.Background(), AuthorizationRequest{
			Principal: "logistics-optimizer",
			Action:    "tasks/cancel",
			Resource:  "task-123",
		})
		require.NoError(t, err)
		assert.Equal(t, "Deny", decision.Decision)
	})
}

func TestNewPDPRejectsMissingFile(t *testing.T) {
	_, err := NewPDP(filepath.Join(t.TempDir(), "missing.cedar"))
	require.Error(t, err)
}

func TestNewPDPRejectsMalformedPolicy(t *testing.T) {
	path := writePolicy(t, "this is not cedar")
	_, err := NewPDP(path)
	require.Error(t, err)
}

func TestAuthorizationRequest(t *testing.T) {
	tests := []struct {
		name     string
		req      AuthorizationRequest
		expected string
	}{
		{
			name: "valid request",
			req: AuthorizationRequest{
				Principal: "agent-1",
				Action:    "submit_task",
				Resource:  "task-1",
			},
			expected: "agent-1",
		},
		{
			name: "request with context",
			req: AuthorizationRequest{
				Principal: "agent-2",
				Action:    "view_task",
				Resource:  "task-2",
				Context: map[string]any{
					"workspace": "team-a",
				},
			},
			expected: "agent-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.req.Principal)
		})
	}
}

func TestAuthorizationDecision(t *testing.T) {
	t.Run("allow decision", func(t *testing.T) {
		decision := &AuthorizationDecision{
			Decision: "Allow",
			Reasons:  []string{"policy permit matched"},
		}
		assert.Equal(t, "Allow", decision.Decision)
	})

	t.Run("deny decision", func(t *testing.T) {
		decision := &AuthorizationDecision{
			Decision: "Deny",
			Reasons:  []string{"no policy matched", "default deny"},
		}
		assert.Equal(t, "Deny", decision.Decision)
	})
}
