package policy

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/ratelimit"
)

// Engine evaluates actions against an ordered Policy, enforcing glob-matched
// rules, rate limits, and classification. It owns no host-approval or token
// state — only the rate-limit buckets it shares with nothing else.
//
// policy is held behind an atomic.Pointer so Evaluate (called from every
// request-handling goroutine) never races SetPolicy (called from the config
// hot-reload watcher goroutine): reads are lock-free, and a reload is a
// single pointer swap rather than a field write a reader could observe
// half-done.
type Engine struct {
	policy  atomic.Pointer[Policy]
	limiter *ratelimit.Limiter
	clock   func() time.Time
}

// NewEngine builds an Engine for p, backed by the given rate limiter.
func NewEngine(p Policy, limiter *ratelimit.Limiter) *Engine {
	e := &Engine{limiter: limiter, clock: time.Now}
	e.policy.Store(&p)
	return e
}

// SetPolicy atomically swaps the rule set, used by the config hot-reload
// watcher. It does not reset rate-limit state.
func (e *Engine) SetPolicy(p Policy) {
	e.policy.Store(&p)
}

// Policy returns the currently loaded policy.
func (e *Engine) Policy() Policy {
	return *e.policy.Load()
}

// Classify exposes action.Classify so callers that only need classification
// (e.g. audit enrichment) don't need to import the action package directly.
func Classify(name string) action.Classification {
	return action.Classify(name)
}

// Evaluate runs the five-step algorithm from spec 4.A: classify, check rate
// limits, record the call, walk rules in order, fall back to default_action.
func (e *Engine) Evaluate(a action.Action) PolicyResult {
	classification := action.Classify(a.Name)
	now := e.clock()
	p := e.policy.Load()

	// Step 2: rate-limit check across every rule whose rate_limit matches
	// this action, before consulting match/action semantics or recording.
	for _, rule := range p.Rules {
		if rule.RateLimit == "" {
			continue
		}
		if !matchAction(rule.Match, a, classification, now) {
			continue
		}
		n, window, ok := ratelimit.ParseSpec(rule.RateLimit)
		if !ok {
			// Malformed rate_limit: rule is ignored for rate-limit purposes
			// but may still match for action purposes below.
			continue
		}
		if e.limiter != nil {
			count := e.limiter.Count(a.Name, window)
			if count >= n {
				return PolicyResult{
					Action:    ActionDeny,
					RuleIndex: -1,
					Reason:    fmt.Sprintf("Rate limit exceeded: %s for %q (%d calls in window)", rule.RateLimit, a.Name, count),
				}
			}
		}
	}

	// Step 3: record the call now that no rate limit rejected it.
	if e.limiter != nil {
		e.limiter.Record(a.Name)
	}

	// Step 4: first-match walk.
	for i, rule := range p.Rules {
		if rule.Action == "" {
			continue
		}
		if !matchAction(rule.Match, a, classification, now) {
			continue
		}
		return PolicyResult{
			Action:    rule.Action,
			RuleIndex: i,
			Level:     rule.Level,
			Timeout:   rule.Timeout,
			Reason:    fmt.Sprintf("Matched rule %d", i),
		}
	}

	// Step 5: no rule matched.
	return PolicyResult{
		Action:    p.DefaultAction,
		RuleIndex: -1,
		Reason:    "No policy rule matched",
	}
}

// matchAction reports whether a Match clause is satisfied by an action.
// An empty Match matches everything; every present field narrows.
func matchAction(m Match, a action.Action, c action.Classification, now time.Time) bool {
	if m.Kind != "" && m.Kind != a.Kind {
		return false
	}
	if m.Tool != "" && !globMatch(a.Name, m.Tool) {
		return false
	}
	if m.Category != "" && m.Category != c.Category {
		return false
	}
	if m.Host != "" && !globMatch(a.Host, m.Host) {
		return false
	}
	if m.Method != "" && m.Method != a.Method {
		return false
	}
	if m.Path != "" && !pathGlobMatch(a.Args, m.Path) {
		return false
	}
	if m.Command != "" && !globMatch(a.Args, m.Command) {
		return false
	}
	if m.Args != "" && !globMatch(a.Args, m.Args) {
		return false
	}
	for _, pattern := range m.ArgsMap {
		if !globMatch(a.Args, pattern) {
			return false
		}
	}
	if m.Conditions.TimeOfDay != nil && !timeOfDayMatches(m.Conditions.TimeOfDay, now) {
		return false
	}
	return true
}
