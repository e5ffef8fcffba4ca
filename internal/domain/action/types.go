// Package action contains the core domain type the whole gateway pivots on:
// a prospective operation by the agent, submitted for consent.
package action

// Kind distinguishes the two action surfaces the gateway intercepts.
type Kind string

const (
	// KindShell is a shell command the agent is about to exec.
	KindShell Kind = "shell"
	// KindHTTP is an outbound HTTP or HTTPS request/tunnel.
	KindHTTP Kind = "http"
)

// Action is an immutable record describing what the agent wants to do.
//
// Invariant: Kind == KindHTTP implies Host is set; Kind == KindShell implies
// Name is non-empty.
type Action struct {
	// Name is the shell command basename, or "http:<METHOD>" for HTTP actions.
	Name string
	// Args is the full command line (shell) or the request URL (HTTP).
	Args string
	// Kind identifies which interception surface produced this action.
	Kind Kind
	// Host is the request host; only set for HTTP actions.
	Host string
	// Method is the HTTP verb or "CONNECT"; only set for HTTP actions.
	Method string
	// Port is the destination port; only set for HTTP actions.
	Port int
}

// Decision is the gate's binary verdict.
type Decision string

const (
	// DecisionAllow permits the action to proceed.
	DecisionAllow Decision = "allow"
	// DecisionDeny blocks the action.
	DecisionDeny Decision = "deny"
)

// Verdict is always produced for an Action; it never throws out of the gate.
type Verdict struct {
	Decision Decision
	Reason   string
}

// Allowed reports whether the verdict permits the action.
func (v Verdict) Allowed() bool {
	return v.Decision == DecisionAllow
}

// Allow builds an allow verdict with the given reason.
func Allow(reason string) Verdict {
	return Verdict{Decision: DecisionAllow, Reason: reason}
}

// Deny builds a deny verdict with the given reason.
func Deny(reason string) Verdict {
	return Verdict{Decision: DecisionDeny, Reason: reason}
}
