package policy

import "testing"

func TestGlobMatchAnchoring(t *testing.T) {
	if globMatch("foo", "fo") {
		t.Error("globMatch(foo, fo) should be false: patterns are anchored")
	}
	if !globMatch("foo", "fo*") {
		t.Error("globMatch(foo, fo*) should be true")
	}
}

func TestPathGlobMatchSlashSemantics(t *testing.T) {
	if !pathGlobMatch("a/b/c", "a/*/c") {
		t.Error("a/*/c should match a/b/c in path flavor")
	}
	if pathGlobMatch("a/b/c", "a/*") {
		t.Error("a/* should not match a/b/c in path flavor: * stops at /")
	}
	if !pathGlobMatch("a/b/c", "a/**") {
		t.Error("a/** should match a/b/c in path flavor: ** crosses /")
	}
}

func TestGlobMatchSimpleFlavorCrossesSlash(t *testing.T) {
	if !globMatch("a/b/c", "a/*") {
		t.Error("simple flavor * should cross / like **")
	}
}

func TestGlobMatchSingleCharWildcard(t *testing.T) {
	if !globMatch("cat", "c?t") {
		t.Error("? should match exactly one character")
	}
	if globMatch("caat", "c?t") {
		t.Error("? should not match two characters")
	}
}

func TestGlobMatchEscapesMetacharacters(t *testing.T) {
	if !globMatch("a.b", "a.b") {
		t.Error("literal . should be escaped, not treated as regex any-char")
	}
	if globMatch("axb", "a.b") {
		t.Error("literal . must not behave like regex wildcard")
	}
}
