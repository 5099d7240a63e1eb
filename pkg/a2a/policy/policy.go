// Package policy decides whether a requester session may write into a
// target session's inbox. The gate is a pure function over configured
// allow/deny lists; denial is a normal outcome, never an error.
package policy

import (
	"fmt"
	"strings"
)

// DeliveryMode selects how a completed task's result reaches the requester.
type DeliveryMode int

const (
	// DeliveryInject announces over a live channel and records to the inbox.
	DeliveryInject DeliveryMode = iota
	// DeliveryInbox writes straight to the inbox, no announce turn.
	DeliveryInbox
)

// ParseDeliveryMode converts the config string form.
func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch s {
	case "inject":
		return DeliveryInject, nil
	case "inbox":
		return DeliveryInbox, nil
	default:
		return DeliveryInject, fmt.Errorf("unknown delivery mode %q", s)
	}
}

// Policy is the gate configuration. With no lists configured everything is
// allowed. A configured allow list confines writers to the listed top-level
// identities; the deny list always wins over allow.
type Policy struct {
	Delivery DeliveryMode
	Allow    []string
	Deny     []string
}

// topLevelIdentity reduces a session key like "agent:main:subagent:sub-001"
// to the identity policy lists speak in ("main"). A bare identity passes
// through unchanged.
func topLevelIdentity(sessionKey string) string {
	parts := strings.Split(sessionKey, ":")
	if len(parts) >= 2 && parts[0] == "agent" {
		return parts[1]
	}
	return sessionKey
}

// IsAllowed reports whether requester may append to target's inbox. The
// caller must skip the write entirely on denial; nothing is rolled back
// because nothing was attempted.
func (p Policy) IsAllowed(requesterSessionKey, targetSessionKey string) bool {
	id := topLevelIdentity(requesterSessionKey)

	for _, denied := range p.Deny {
		if id == denied || requesterSessionKey == denied {
			return false
		}
	}

	if len(p.Allow) == 0 {
		return true
	}
	for _, allowed := range p.Allow {
		if id == allowed || requesterSessionKey == allowed {
			return true
		}
	}
	return false
}
