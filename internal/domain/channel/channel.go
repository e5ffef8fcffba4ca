// Package channel defines the capability surface for delivering a consent
// prompt to a human and awaiting their answer.
package channel

import (
	"context"
	"time"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
)

// Answer is the human's response to a prompt.
type Answer struct {
	Approved bool
	Reason   string
}

// Channel is the capability set every variant (terminal, webhook, push)
// implements: deliver a prompt for an action and block until the human
// answers or timeout elapses. Implementations must never panic and must
// return within timeout plus a small grace for network I/O once the prompt
// is issued; the terminal and push variants serialize prompts, so an Ask
// may first wait for earlier prompts to finish.
type Channel interface {
	Ask(ctx context.Context, a action.Action, timeout time.Duration) (Answer, error)
}

// PendingPrompt is the in-flight state of a single outstanding ask, held
// only by the Channel instance serving it — never persisted, never shared
// across Channel implementations.
type PendingPrompt struct {
	RequestID string
	Action    action.Action
	Deadline  time.Time
	// Resolved carries the final Answer once the human (or timeout) settles
	// it; exactly one value is ever sent.
	Resolved chan Answer
}

// NewPendingPrompt creates a prompt awaiting resolution by the deadline.
func NewPendingPrompt(requestID string, a action.Action, deadline time.Time) *PendingPrompt {
	return &PendingPrompt{
		RequestID: requestID,
		Action:    a,
		Deadline:  deadline,
		Resolved:  make(chan Answer, 1),
	}
}
