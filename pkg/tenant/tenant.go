package tenant

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxBaseLength is the maximum length of the base tenant component.
const MaxBaseLength = 128

// MaxSessionLength is the maximum length of the session component.
const MaxSessionLength = 128

// baseRe matches a valid base tenant: word characters plus "-" and ".".
var baseRe = regexp.MustCompile(`^[A-Za-z0-9_\-.]{1,128}$`)

// sessionRe matches a valid session id: word characters plus "+ - . @".
var sessionRe = regexp.MustCompile(`^[A-Za-z0-9_+\-.@]{1,128}$`)

// Key is a parsed tenant identifier.
//
// Base is the durable namespace; Session is the optional ephemeral
// sub-namespace. A Key with an empty Session addresses only long-term
// memory.
type Key struct {
	// Base is the tenant namespace (e.g., "acme").
	Base string

	// Session is the optional session component (e.g., "user@laptop").
	// Empty when the caller supplied a bare tenant.
	Session string
}

// InvalidKeyError reports a tenant identifier that failed validation.
type InvalidKeyError struct {
	// Raw is the identifier as supplied by the caller.
	Raw string

	// Reason describes why validation failed.
	Reason string
}

// Error implements the error interface.
func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid tenant identifier %q: %s", e.Raw, e.Reason)
}

// Parse parses a raw path segment into a Key.
//
// Accepted forms:
//
//	base
//	base:session
//
// Returns *InvalidKeyError when either component violates the allowed
// character set or length limits.
func Parse(raw string) (Key, error) {
	if raw == "" {
		return Key{}, &InvalidKeyError{Raw: raw, Reason: "empty identifier"}
	}

	base := raw
	session := ""
	if idx := strings.IndexByte(raw, ':'); idx >= 0 {
		base = raw[:idx]
		session = raw[idx+1:]
		if session == "" {
			return Key{}, &InvalidKeyError{Raw: raw, Reason: "empty session component"}
		}
		if strings.ContainsRune(session, ':') {
			return Key{}, &InvalidKeyError{Raw: raw, Reason: "session component must not contain ':'"}
		}
	}

	if !baseRe.MatchString(base) {
		return Key{}, &InvalidKeyError{
			Raw:    raw,
			Reason: fmt.Sprintf("base tenant must match %s", baseRe.String()),
		}
	}

	if session != "" && !sessionRe.MatchString(session) {
		return Key{}, &InvalidKeyError{
			Raw:    raw,
			Reason: fmt.Sprintf("session id must match %s", sessionRe.String()),
		}
	}

	return Key{Base: base, Session: session}, nil
}

// SessionScoped reports whether the key carries a session component.
func (k Key) SessionScoped() bool {
	return k.Session != ""
}

// String returns the canonical textual form of the key.
func (k Key) String() string {
	if k.Session == "" {
		return k.Base
	}
	return k.Base + ":" + k.Session
}
