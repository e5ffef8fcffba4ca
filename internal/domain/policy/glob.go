package policy

import (
	"regexp"
	"strings"
	"sync"
)

// compiledGlobCache memoizes compiled glob patterns; policy files are small
// and re-evaluated on every action, so recompiling per call would dominate
// evaluate()'s cost.
var compiledGlobCache sync.Map // map[globKey]*regexp.Regexp

type globKey struct {
	pattern   string
	pathAware bool
}

// globMatch reports whether s matches pattern under the simple glob flavor:
// '*' and '**' both match any run of characters (including '/'), '?' matches
// exactly one character, everything else is literal. Patterns are anchored
// at both ends. Used for shell/host matching.
func globMatch(s, pattern string) bool {
	return match(s, pattern, false)
}

// pathGlobMatch reports whether s matches pattern under the path-aware glob
// flavor: a single '*' matches any run of characters except '/', while '**'
// matches across '/'. Used for HTTP path matching.
func pathGlobMatch(s, pattern string) bool {
	return match(s, pattern, true)
}

func match(s, pattern string, pathAware bool) bool {
	re := compileGlob(pattern, pathAware)
	return re.MatchString(s)
}

func compileGlob(pattern string, pathAware bool) *regexp.Regexp {
	key := globKey{pattern: pattern, pathAware: pathAware}
	if cached, ok := compiledGlobCache.Load(key); ok {
		return cached.(*regexp.Regexp)
	}

	re := regexp.MustCompile("^" + globToRegex(pattern, pathAware) + "$")
	compiledGlobCache.Store(key, re)
	return re
}

// globToRegex translates a glob pattern into an anchored regex fragment.
// Non-glob metacharacters are escaped so the pattern only ever grants the
// wildcard semantics it explicitly asks for.
func globToRegex(pattern string, pathAware bool) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
				continue
			}
			if pathAware {
				b.WriteString("[^/]*")
			} else {
				b.WriteString(".*")
			}
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
