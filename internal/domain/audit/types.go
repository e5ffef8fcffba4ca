// Package audit contains the append-only record of every (action, verdict)
// pair the gate produces.
package audit

import (
	"time"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
)

// Entry is a single auditable (action, verdict) pair. Created inside the
// Consent Gate, appended once, never mutated.
type Entry struct {
	// Timestamp is when the verdict was produced, in UTC.
	Timestamp time.Time `json:"timestamp"`
	// RequestID correlates this entry across the shell-gate and proxy logs.
	RequestID string `json:"request_id,omitempty"`
	Action    action.Action `json:"action"`
	Decision  action.Decision `json:"decision"`
	Reason    string `json:"reason"`
}
