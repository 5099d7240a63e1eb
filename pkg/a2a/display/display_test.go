package display

import (
	"testing"

	"github.com/tinyland-inc/relayclaw/pkg/sessions"
)

func TestResolve_PreferredChain(t *testing.T) {
	record := sessions.Entry{
		DisplayName: "Payments QA",
		Label:       "payments",
		OriginLabel: "spawned-by-main",
	}

	res := Resolve("agent:main:subagent:sub-001", "caller-provided", record, NamingPreferred)
	if res.Key != "Payments QA" {
		t.Errorf("expected displayName first, got %q", res.Key)
	}
	if res.UsedFallback {
		t.Error("first choice is not a fallback")
	}

	record.DisplayName = ""
	res = Resolve("agent:main:subagent:sub-001", "caller-provided", record, NamingPreferred)
	if res.Key != "payments" || !res.UsedFallback {
		t.Errorf("expected label fallback, got %+v", res)
	}

	record.Label = ""
	record.OriginLabel = ""
	res = Resolve("agent:main:subagent:sub-001", "caller-provided", record, NamingPreferred)
	if res.Key != "caller-provided" || !res.UsedFallback {
		t.Errorf("expected provided-key fallback, got %+v", res)
	}
}

func TestResolve_LegacyPrefersProvided(t *testing.T) {
	record := sessions.Entry{DisplayName: "Payments QA"}

	res := Resolve("agent:main:cli", "caller-provided", record, NamingLegacy)
	if res.Key != "caller-provided" || res.UsedFallback {
		t.Errorf("legacy mode must prefer the provided key, got %+v", res)
	}

	res = Resolve("agent:main:cli", "", record, NamingLegacy)
	if res.Key != "Payments QA" || !res.UsedFallback {
		t.Errorf("expected displayName fallback, got %+v", res)
	}
}

func TestResolve_WhitespaceKeysAreEmpty(t *testing.T) {
	record := sessions.Entry{DisplayName: "   ", Label: "payments"}
	res := Resolve("agent:main:cli", "", record, NamingPreferred)
	if res.Key != "payments" {
		t.Errorf("whitespace-only displayName must be skipped, got %q", res.Key)
	}
}

func TestResolve_RawKeyFallback(t *testing.T) {
	res := Resolve("agent:main:cli", "", sessions.Entry{}, NamingPreferred)
	if res.Key != "agent:main:cli" || !res.UsedFallback {
		t.Errorf("expected raw key fallback, got %+v", res)
	}
	if res.Blocked {
		t.Error("a top-level session falling back to its raw key is not blocked")
	}
}

func TestResolve_UnlabeledSpawnedSessionIsBlocked(t *testing.T) {
	res := Resolve("agent:main:subagent:sub-001", "", sessions.Entry{}, NamingPreferred)
	if !res.Blocked {
		t.Error("an unlabeled spawned session must block the write")
	}
	if res.Key != "agent:main:subagent:sub-001" {
		t.Errorf("blocked resolution still reports the raw key, got %q", res.Key)
	}
}

func TestIsSpawnedSession(t *testing.T) {
	if !IsSpawnedSession("agent:main:subagent:sub-001") {
		t.Error("subagent key must be detected")
	}
	if IsSpawnedSession("agent:main:cli") {
		t.Error("top-level key is not spawned")
	}
}

func TestParseNamingMode(t *testing.T) {
	if mode, err := ParseNamingMode("preferred"); err != nil || mode != NamingPreferred {
		t.Errorf("preferred: got %v, %v", mode, err)
	}
	if mode, err := ParseNamingMode("legacy"); err != nil || mode != NamingLegacy {
		t.Errorf("legacy: got %v, %v", mode, err)
	}
	if _, err := ParseNamingMode("whatever"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
