// Package display resolves the human label shown for a source session when
// its relayed result is rendered. Resolution happens once, at write time;
// events carry the resolved key forever after.
package display

import (
	"fmt"
	"strings"

	"github.com/tinyland-inc/relayclaw/pkg/sessions"
)

// NamingMode orders the fallback chain.
type NamingMode int

const (
	// NamingPreferred consults the source session's own persisted labels
	// before the caller-provided key.
	NamingPreferred NamingMode = iota
	// NamingLegacy prefers the caller-provided key.
	NamingLegacy
)

// ParseNamingMode converts the config string form.
func ParseNamingMode(s string) (NamingMode, error) {
	switch s {
	case "preferred":
		return NamingPreferred, nil
	case "legacy":
		return NamingLegacy, nil
	default:
		return NamingPreferred, fmt.Errorf("unknown naming mode %q", s)
	}
}

// Resolution is the outcome of a display-key lookup. Blocked means the
// source is a spawned sub-task session with no resolvable label at all; the
// caller must refuse the inbox write and surface a warning rather than relay
// an unlabeled message.
type Resolution struct {
	Key          string
	UsedFallback bool
	Blocked      bool
}

// IsSpawnedSession reports whether a session key follows the spawned
// sub-task naming convention.
func IsSpawnedSession(sessionKey string) bool {
	return strings.Contains(sessionKey, ":subagent:")
}

// Resolve walks the fallback chain for a source session's display key.
// record is the source session's persisted entry, zero-valued when the
// session is unknown to the store.
func Resolve(sourceSessionKey, providedDisplayKey string, record sessions.Entry, mode NamingMode) Resolution {
	var chain []string
	switch mode {
	case NamingLegacy:
		chain = []string{providedDisplayKey, record.DisplayName, record.Label, record.OriginLabel}
	default:
		chain = []string{record.DisplayName, record.Label, record.OriginLabel, providedDisplayKey}
	}

	for i, key := range chain {
		if strings.TrimSpace(key) != "" {
			return Resolution{Key: key, UsedFallback: i > 0}
		}
	}

	// Last resort: the raw session identifier. For spawned sub-task
	// sessions that is a data-quality violation, not a cosmetic one.
	if IsSpawnedSession(sourceSessionKey) {
		return Resolution{Key: sourceSessionKey, UsedFallback: true, Blocked: true}
	}
	return Resolution{Key: sourceSessionKey, UsedFallback: true}
}
