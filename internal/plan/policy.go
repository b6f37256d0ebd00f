package plan

import "fmt"

// FailurePolicy decides what happens to unrelated work after a task fails.
type FailurePolicy int

const (
	// ContinueOnFailure skips only the dependents of a failed task and lets
	// independent branches finish.
	ContinueOnFailure FailurePolicy = iota
	// FailFast stops selecting work after the first failure. Every node that
	// is not already executing is skipped.
	FailFast
)

func (p FailurePolicy) String() string {
	switch p {
	case ContinueOnFailure:
		return "continue"
	case FailFast:
		return "fail-fast"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy reads the configuration spelling of a policy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "continue":
		return ContinueOnFailure, nil
	case "fail-fast":
		return FailFast, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q (expected continue or fail-fast)", s)
	}
}

// Option configures a Plan at build time.
type Option func(*Plan)

// WithFailurePolicy sets the failure policy. The default is ContinueOnFailure.
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(p *Plan) { p.policy = policy }
}

// TransitionHook observes every node state change. It runs with the
// coordination lock held and must not block or open transactions.
type TransitionHook func(n *Node, from, to State)

// WithTransitionHook registers a hook called on every state change.
func WithTransitionHook(hook TransitionHook) Option {
	return func(p *Plan) { p.hooks = append(p.hooks, hook) }
}
