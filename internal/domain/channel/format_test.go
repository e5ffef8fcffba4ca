package channel

import (
	"testing"

	"github.com/Sentinel-Gate/acp-gate/internal/domain/action"
)

func TestSummaryShellBasename(t *testing.T) {
	got := Summary(action.Action{Kind: action.KindShell, Name: "/usr/bin/git", Args: "git push origin main"})
	if got != "git git push origin main" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestSummaryRuntimeWrapperSubstitution(t *testing.T) {
	got := Summary(action.Action{Kind: action.KindShell, Name: "python3", Args: "-u ./scripts/deploy.py --force"})
	if got != "deploy.py -u ./scripts/deploy.py --force" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestSummaryTruncatesLongArgs(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "x"
	}
	got := Summary(action.Action{Kind: action.KindShell, Name: "echo", Args: long})
	if len(got) <= 200 || got[len(got)-3:] != "..." {
		t.Fatalf("expected truncated args with ellipsis, got len=%d", len(got))
	}
}

func TestSummaryHTTP(t *testing.T) {
	got := Summary(action.Action{Kind: action.KindHTTP, Method: "GET", Args: "https://api.openai.com/v1/models", Host: "api.openai.com"})
	if got != "GET https://api.openai.com/v1/models" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestFirstNonFlagArg(t *testing.T) {
	if got := firstNonFlagArg("-u -v ./deploy.py --force"); got != "./deploy.py" {
		t.Fatalf("expected ./deploy.py, got %q", got)
	}
	if got := firstNonFlagArg("--only-flags"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
