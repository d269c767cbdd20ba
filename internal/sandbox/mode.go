// Package sandbox enforces the privilege pairing applied to embedded
// document content.
//
// Embedded EPUB content is rendered inside frames hung off a mount node.
// Every frame carries exactly one of two sandbox attribute values: either
// the host may read the frame's document but scripts are blocked, or
// scripts may run but the frame is isolated to an opaque origin. The two
// grants are never combined.
package sandbox

import (
	"fmt"
	"strings"
)

// Mode is the privilege set applied to embedded content.
type Mode int

const (
	// ScriptsBlocked forbids script execution and keeps the frame on the
	// host origin, so search, highlighting and text extraction work.
	ScriptsBlocked Mode = iota
	// ScriptsAllowed lets the frame run scripts but isolates it to a
	// unique origin with no host access.
	ScriptsAllowed
)

// Sandbox tokens as they appear in a frame's sandbox attribute.
const (
	tokenSameOrigin = "allow-same-origin"
	tokenScripts    = "allow-scripts"
)

// AttrName is the frame attribute carrying the privilege tokens.
const AttrName = "sandbox"

// Attr returns the exact attribute value for the mode.
func (m Mode) Attr() string {
	if m == ScriptsAllowed {
		return tokenScripts
	}
	return tokenSameOrigin
}

func (m Mode) String() string {
	if m == ScriptsAllowed {
		return "allowed"
	}
	return "blocked"
}

// ParseMode parses a persisted preference value.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "blocked", "scripts-blocked":
		return ScriptsBlocked, nil
	case "allowed", "scripts-allowed":
		return ScriptsAllowed, nil
	}
	return ScriptsBlocked, fmt.Errorf("unknown sandbox mode %q", s)
}

// ModeFromAttr maps an attribute value back to a mode. It reports false
// for anything other than the two exact values, including the combined
// grant.
func ModeFromAttr(v string) (Mode, bool) {
	switch v {
	case tokenSameOrigin:
		return ScriptsBlocked, true
	case tokenScripts:
		return ScriptsAllowed, true
	}
	return ScriptsBlocked, false
}

// ValidAttr reports whether v is exactly one of the two defined values.
func ValidAttr(v string) bool {
	_, ok := ModeFromAttr(v)
	return ok
}

func hasToken(attr, token string) bool {
	for _, f := range strings.Fields(attr) {
		if f == token {
			return true
		}
	}
	return false
}
