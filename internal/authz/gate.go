// Package authz exposes the authorization boundary a host application can
// plug into. Bindu never decides whether a DID is allowed to act on a task;
// it only calls the gate and obeys the verdict. The default gate is backed
// by Cedar; a host is free to substitute its own PolicyGate implementation.
package authz

import (
	"context"

	"bindu/internal/auth/cedar"
)

// Request describes the thing being attempted: which DID, what action
// (e.g. "message/send", "tasks/cancel"), and on what resource (a task or
// context ID).
type Request struct {
	Principal string
	Action    string
	Resource  string
	Context   map[string]any
}

// PolicyGate is the authorization collaborator interface. Implementations
// return nil to allow a request and a non-nil error (typically wrapping
// ErrDenied) to deny it.
type PolicyGate interface {
	Check(ctx context.Context, req Request) error
}

// AllowAll is a PolicyGate that never denies. It is the default when no
// policy file is configured, matching the "business rules are a host
// concern" boundary.
type AllowAll struct{}

func (AllowAll) Check(ctx context.Context, req Request) error { return nil }

// CedarGate adapts a cedar.PolicyDecisionPoint to the PolicyGate interface.
type CedarGate struct {
	pdp *cedar.PolicyDecisionPoint
}

// NewCedarGate loads Cedar policies from policyPath and returns a PolicyGate
// backed by them.
func NewCedarGate(policyPath string) (*CedarGate, error) {
	pdp, err := cedar.NewPDP(policyPath)
	if err != nil {
		return nil, err
	}
	return &CedarGate{pdp: pdp}, nil
}

// ErrDenied is returned (wrapped) by CedarGate.Check when a policy denies
// the request.
var ErrDenied = &deniedError{}

type deniedError struct{ reasons []string }

func (e *deniedError) Error() string {
	if len(e.reasons) == 0 {
		return "authz: denied"
	}
	return "authz: denied (" + joinReasons(e.reasons) + ")"
}

// Is lets errors.Is(err, ErrDenied) match any denial, whatever its reasons.
func (e *deniedError) Is(target error) bool { return target == ErrDenied }

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += ", "
		}
		out += r
	}
	return out
}

// Check evaluates req against the loaded Cedar policy set.
func (g *CedarGate) Check(ctx context.Context, req Request) error {
	decision, err := g.pdp.Authorize(ctx, cedar.AuthorizationRequest{
		Principal: req.Principal,
		Action:    req.Action,
		Resource:  req.Resource,
		Context:   req.Context,
	})
	if err != nil {
		return err
	}
	if decision.Decision != "Allow" {
		return &deniedError{reasons: decision.Reasons}
	}
	return nil
}
