package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
	"github.com/Sentinel-Gate/acp-gate/internal/domain/policy"
)

// policyDocument is the on-disk YAML shape of a policy file (spec §6). It is
// decoded then compiled into the domain policy.Policy the Engine consumes.
type policyDocument struct {
	Version       string        `yaml:"version"`
	DefaultAction string        `yaml:"default_action"`
	Rules         []ruleDoc     `yaml:"rules"`
}

type ruleDoc struct {
	Match     matchDoc `yaml:"match"`
	Action    string   `yaml:"action"`
	Level     string   `yaml:"level"`
	Timeout   int      `yaml:"timeout"`
	RateLimit string   `yaml:"rate_limit"`
}

type matchDoc struct {
	Kind       string         `yaml:"kind"`
	Tool       string         `yaml:"tool"`
	Name       string         `yaml:"name"`
	Category   string         `yaml:"category"`
	Host       string         `yaml:"host"`
	Method     string         `yaml:"method"`
	Path       string         `yaml:"path"`
	Command    string         `yaml:"command"`
	Args       argsDoc        `yaml:"args"`
	Conditions conditionsDoc  `yaml:"conditions"`
}

// argsDoc accepts the spec's two args shapes: a bare glob string, or a map
// of per-argument globs.
type argsDoc struct {
	Glob string
	Map  map[string]string
}

func (a *argsDoc) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&a.Glob)
	case yaml.MappingNode:
		return value.Decode(&a.Map)
	default:
		return fmt.Errorf("args: expected a string or a map, got %v", value.Kind)
	}
}

type conditionsDoc struct {
	TimeOfDay *timeOfDayDoc `yaml:"time_of_day"`
}

type timeOfDayDoc struct {
	After  string `yaml:"after"`
	Before string `yaml:"before"`
}

// LoadPolicyFile reads and compiles a policy YAML document from path.
func LoadPolicyFile(path string) (policy.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicyDocument(data)
}

// ParsePolicyDocument decodes and compiles a policy YAML document.
func ParsePolicyDocument(data []byte) (policy.Policy, error) {
	var doc policyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return policy.Policy{}, fmt.Errorf("parse policy yaml: %w", err)
	}
	return compilePolicyDocument(doc)
}

func compilePolicyDocument(doc policyDocument) (policy.Policy, error) {
	defaultAction, err := parseRuleAction(doc.DefaultAction, "default_action")
	if err != nil {
		return policy.Policy{}, err
	}

	rules := make([]policy.Rule, 0, len(doc.Rules))
	for i, rd := range doc.Rules {
		rule, err := compileRule(rd)
		if err != nil {
			return policy.Policy{}, fmt.Errorf("rules[%d]: %w", i, err)
		}
		rules = append(rules, rule)
	}

	return policy.Policy{
		Version:       doc.Version,
		DefaultAction: defaultAction,
		Rules:         rules,
	}, nil
}

func compileRule(rd ruleDoc) (policy.Rule, error) {
	ruleAction, err := parseRuleAction(rd.Action, "action")
	if err != nil {
		return policy.Rule{}, err
	}

	match := policy.Match{
		Kind:     action.Kind(rd.Match.Kind),
		Tool:     firstNonEmpty(rd.Match.Tool, rd.Match.Name),
		Category: rd.Match.Category,
		Host:     rd.Match.Host,
		Method:   rd.Match.Method,
		Path:     rd.Match.Path,
		Command:  rd.Match.Command,
		Args:     rd.Match.Args.Glob,
		ArgsMap:  rd.Match.Args.Map,
	}

	if rd.Match.Conditions.TimeOfDay != nil {
		match.Conditions.TimeOfDay = &policy.TimeOfDay{
			After:  rd.Match.Conditions.TimeOfDay.After,
			Before: rd.Match.Conditions.TimeOfDay.Before,
		}
	}

	return policy.Rule{
		Match:     match,
		Action:    ruleAction,
		Level:     rd.Level,
		Timeout:   rd.Timeout,
		RateLimit: rd.RateLimit,
	}, nil
}

func parseRuleAction(s, field string) (policy.RuleAction, error) {
	switch policy.RuleAction(s) {
	case policy.ActionAllow, policy.ActionAsk, policy.ActionDeny:
		return policy.RuleAction(s), nil
	default:
		return "", fmt.Errorf("%s: invalid action %q (want allow, ask, or deny)", field, s)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
