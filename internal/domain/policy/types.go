// Package policy implements the declarative rule engine the gateway consults
// before ever prompting a human: ordered glob-matched rules, rate limits,
// and time-of-day conditions.
package policy

import "github.com/Sentinel-Gate/acp-gate/internal/domain/action"

// RuleAction is the verdict a matched rule (or the policy default) assigns.
type RuleAction string

const (
	ActionAllow RuleAction = "allow"
	ActionAsk   RuleAction = "ask"
	ActionDeny  RuleAction = "deny"
)

// TimeOfDay constrains a rule to a UTC time-of-day window, "after" inclusive
// and "before" exclusive. When After > Before the window wraps midnight:
// [after, 1440) union [0, before).
type TimeOfDay struct {
	After  string // "HH:MM"
	Before string // "HH:MM"
}

// Conditions are extra predicates a rule's match clause may carry.
type Conditions struct {
	TimeOfDay *TimeOfDay
}

// Match narrows which actions a Rule applies to. Every field is optional; an
// empty Match matches everything.
type Match struct {
	Kind     action.Kind
	Tool     string            // glob against Action.Name (also accepts "name")
	Category string            // exact match against Classification.Category
	Host     string            // glob against Action.Host
	Method   string            // exact match against Action.Method
	Path     string            // path-aware glob against Action.Args
	Command  string            // glob against Action.Args
	Args     string            // glob against Action.Args ("" if absent)
	ArgsMap  map[string]string // per-named-argument globs, stringified values

	Conditions Conditions
}

// Rule is a single ordered policy rule.
type Rule struct {
	Match      Match
	Action     RuleAction
	Level      string // advisory: low|medium|high|critical
	Timeout    int    // seconds the human has to respond, for Action == ActionAsk
	RateLimit  string // "N/unit", unit in {second,minute,hour,day}
	HelpText   string
}

// Policy is the ordered, first-match rule set the engine evaluates.
type Policy struct {
	Version       string
	DefaultAction RuleAction
	Rules         []Rule
}

// PolicyResult is the outcome of evaluating an action against a Policy.
type PolicyResult struct {
	Action    RuleAction
	RuleIndex int // -1 when no rule matched (default_action applied)
	Level     string
	Timeout   int
	Reason    string
}
