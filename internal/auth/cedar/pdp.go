// Package cedar provides Cedar policy evaluation for authorization
package cedar

import (
	"context"
	"fmt"
	"os"

	"github.com/cedar-policy/cedar-go"
	"github.com/cedar-policy/cedar-go/types"
)

// PolicyDecisionPoint evaluates authorization requests against Cedar policies
type PolicyDecisionPoint struct {
	policySet *cedar.PolicySet
}

// AuthorizationRequest represents a request to authorize
type AuthorizationRequest struct {
	Principal string         `json:"principal"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Context   map[string]any `json:"context,omitempty"`
}

// AuthorizationDecision represents the authorization result
type AuthorizationDecision struct {
	Decision string   `json:"decision"` // "Allow" or "Deny"
	Reasons  []string `json:"reasons,omitempty"`
}

// NewPDP creates a new policy decision point from policy files
func NewPDP(policyPath string) (*PolicyDecisionPoint, error) {
	// Read policy file
	policyBytes, err := os.ReadFile(policyPath)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	// Parse policies using NewPolicySetFromBytes
	policySet, err := cedar.NewPolicySetFromBytes(policyPath, policyBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing policies: %w", err)
	}

	return &PolicyDecisionPoint{
		policySet: policySet,
	}, nil
}

// actionCategories maps the closed A2A method taxonomy (spec §4.4) onto a
// read/write category Cedar policies can key off of without enumerating
// every method name, e.g. `permit(principal, action, resource) when
// {action.category == "task-write"};`. A method absent from this table
// (a host-defined extension action) categorizes as "unknown" rather than
// failing evaluation outright — the policy author decides whether to
// permit unknown categories.
var actionCategories = map[string]string{
	"message/send":                "task-write",
	"tasks/get":                   "task-read",
	"tasks/cancel":                "task-write",
	"tasks/list":                  "task-read",
	"tasks/feedback":              "task-write",
	"contexts/list":               "context-read",
	"contexts/clear":              "context-write",
	"tasks/pushNotification/set": "task-write",
}

func actionCategory(action string) string {
	if cat, ok := actionCategories[action]; ok {
		return cat
	}
	return "unknown"
}

// Authorize evaluates an authorization request against policies
func (p *PolicyDecisionPoint) Authorize(
	ctx context.Context,
	req AuthorizationRequest,
) (*AuthorizationDecision, error) {
	// Convert to Cedar entities using NewEntityUID helper
	principal := types.NewEntityUID(types.EntityType("A2A::Agent"), types.String(req.Principal))
	action := types.NewEntityUID(types.EntityType("A2A::Action"), types.String(req.Action))
	resource := types.NewEntityUID(types.EntityType("A2A::Task"), types.String(req.Resource))

	// Build entities - keys are EntityUID. The resource entity carries the
	// attributes in req.Context (the JSON-RPC dispatcher passes the
	// request's decoded params) so a policy can condition on them, e.g.
	// `when { resource has task_id }`; the action entity carries its
	// read/write category from the taxonomy above.
	entities := types.EntityMap{
		principal: types.Entity{
			UID:        principal,
			Attributes: types.Record{},
		},
		action: types.Entity{
			UID:        action,
			Attributes: toRecord(map[string]any{"category": actionCategory(req.Action)}),
		},
		resource: types.Entity{
			UID:        resource,
			Attributes: toRecord(req.Context),
		},
	}

	// Build request - EntityUID not pointer
	cedarReq := types.Request{
		Principal: principal,
		Action:    action,
		Resource:  resource,
	}

	// Evaluate the policy using Authorize function
	decision, diagnostic := cedar.Authorize(p.policySet, entities, cedarReq)

	result := "Deny"
	if decision == cedar.Allow {
		result = "Allow"
	}

	// Extract reasons if available
	var reasons []string
	if len(diagnostic.Reasons) > 0 {
		for _, r := range diagnostic.Reasons {
			reasons = append(reasons, string(r.PolicyID))
		}
	}

	return &AuthorizationDecision{
		Decision: result,
		Reasons:  reasons,
	}, nil
}

// toRecord converts a plain map (typically the gated request's decoded
// params, threaded in via AuthorizationRequest.Context) into the Cedar
// attribute record carried on an entity.
func toRecord(m map[string]any) types.Record {
	if len(m) == 0 {
		return types.Record{}
	}
	rec := make(types.Record, len(m))
	for k, v := range m {
		rec[types.String(k)] = toCedarValue(v)
	}
	return rec
}

func toCedarValue(v any) types.Value {
	switch val := v.(type) {
	case string:
		return types.String(val)
	case bool:
		return types.Boolean(val)
	case int:
		return types.Long(val)
	case int64:
		return types.Long(val)
	case float64:
		return types.Long(int64(val))
	default:
		return types.String(fmt.Sprintf("%v", val))
	}
}