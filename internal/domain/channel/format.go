package channel

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
)

const maxArgsDisplay = 200

// runtimeWrappers are tool names whose basename is not informative on its
// own; the display name is replaced by the basename of the first
// non-flag argument (e.g. "python3 ./scripts/deploy.py" displays as
// "deploy.py").
var runtimeWrappers = map[string]bool{
	"node":    true,
	"python":  true,
	"python3": true,
}

// Summary renders a one-line human-readable description of an action for
// a consent prompt.
func Summary(a action.Action) string {
	if a.Kind == action.KindHTTP {
		return httpSummary(a)
	}
	return shellSummary(a)
}

func shellSummary(a action.Action) string {
	name := filepath.Base(a.Name)
	if runtimeWrappers[name] {
		if wrapped := firstNonFlagArg(a.Args); wrapped != "" {
			name = filepath.Base(wrapped)
		}
	}

	args := a.Args
	if len(args) > maxArgsDisplay {
		args = args[:maxArgsDisplay] + "..."
	}

	if args == "" {
		return name
	}
	return fmt.Sprintf("%s %s", name, args)
}

func httpSummary(a action.Action) string {
	return fmt.Sprintf("%s %s", a.Method, a.Args)
}

// firstNonFlagArg returns the first whitespace-separated token in args
// that does not start with "-".
func firstNonFlagArg(args string) string {
	for _, tok := range strings.Fields(args) {
		if !strings.HasPrefix(tok, "-") {
			return tok
		}
	}
	return ""
}
