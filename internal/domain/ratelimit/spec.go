package ratelimit

import (
	"strconv"
	"strings"
	"time"
)

// unitWindows maps the rate_limit unit vocabulary to a duration.
var unitWindows = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseSpec parses a "N/unit" rate_limit string. It returns ok=false for any
// malformed spec (unparsable N, N<=0, or unrecognized unit); per spec 4.A
// malformed rate_limit strings cause the rule to be ignored for rate-limit
// purposes only, so callers should keep evaluating the rule for its action
// when ok is false.
func ParseSpec(spec string) (n int, window time.Duration, ok bool) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count <= 0 {
		return 0, 0, false
	}
	window, found := unitWindows[strings.TrimSpace(parts[1])]
	if !found {
		return 0, 0, false
	}
	return count, window, true
}
