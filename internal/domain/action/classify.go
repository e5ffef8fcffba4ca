package action

import "strings"

// RiskLevel is an advisory severity attached to a Classification.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Classification is the category/risk pair resolved for an action name.
type Classification struct {
	Category  string
	RiskLevel RiskLevel
}

// namespacedClassifications are exact entries checked first: bare shell
// basenames (Action.Name for a shell action is always a bare basename, e.g.
// "sudo", never "shell:sudo" — see Action.Name's doc comment), plus
// namespaced HTTP entries such as "http:CONNECT" (Action.Name for an HTTP
// action is "http:<METHOD>").
var namespacedClassifications = map[string]Classification{
	"rm":           {Category: "filesystem_destructive", RiskLevel: RiskHigh},
	"sudo":         {Category: "privilege_escalation", RiskLevel: RiskCritical},
	"curl":         {Category: "network_egress", RiskLevel: RiskMedium},
	"wget":         {Category: "network_egress", RiskLevel: RiskMedium},
	"http:CONNECT": {Category: "network_egress", RiskLevel: RiskMedium},
	"file:write":   {Category: "filesystem_write", RiskLevel: RiskMedium},
	"file:delete":  {Category: "filesystem_destructive", RiskLevel: RiskHigh},
}

// wellKnownTools are exact entries for widely-used developer/agent tools that
// do not need a namespace prefix to disambiguate.
var wellKnownTools = map[string]Classification{
	"ls":     {Category: "filesystem_read", RiskLevel: RiskLow},
	"cat":    {Category: "filesystem_read", RiskLevel: RiskLow},
	"git":    {Category: "vcs", RiskLevel: RiskLow},
	"npm":    {Category: "package_manager", RiskLevel: RiskMedium},
	"pip":    {Category: "package_manager", RiskLevel: RiskMedium},
	"docker": {Category: "container_runtime", RiskLevel: RiskHigh},
	"ssh":    {Category: "remote_access", RiskLevel: RiskHigh},
	"kubectl": {Category: "container_runtime", RiskLevel: RiskHigh},
}

// patternFallbacks are prefix-keyed fallbacks consulted last.
var patternFallbacks = []struct {
	prefix string
	class  Classification
}{
	{"http:", Classification{Category: "network_egress", RiskLevel: RiskMedium}},
	{"shell:", Classification{Category: "shell_exec", RiskLevel: RiskMedium}},
	{"file:", Classification{Category: "filesystem", RiskLevel: RiskMedium}},
}

// unknownClassification is returned when no tier matches.
var unknownClassification = Classification{Category: "unknown", RiskLevel: RiskMedium}

// Classify resolves a Classification for an action name using the three
// tiers documented in the policy engine specification: exact namespaced
// entries, exact well-known tool names, then prefix-based fallbacks.
func Classify(name string) Classification {
	if c, ok := namespacedClassifications[name]; ok {
		return c
	}
	if c, ok := wellKnownTools[name]; ok {
		return c
	}
	for _, fb := range patternFallbacks {
		if strings.HasPrefix(name, fb.prefix) {
			return fb.class
		}
	}
	return unknownClassification
}
