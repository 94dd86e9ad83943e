package auth

import (
	"strings"
	"time"
)

// AnonymousIdentity is reported for callers without a trusted credential.
const AnonymousIdentity = "anonymous"

// Claims are the parts of a verified credential the platform relies on.
type Claims struct {
	Issuer            string
	Subject           string
	PreferredUsername string
	IssuedAt          time.Time
	NotBefore         time.Time
	ExpiresAt         time.Time
	// Raw holds every claim of the credential.
	Raw map[string]any
}

// Principal is either Authenticated or Anonymous.
type Principal interface {
	principal()
}

// Authenticated is a caller whose credential was verified.
type Authenticated struct {
	Claims Claims
}

// Anonymous is a caller without a verified credential.
type Anonymous struct{}

func (Authenticated) principal() {}
func (Anonymous) principal()     {}

// ResolveIdentity returns the display identity of p: the preferred username, else the
// subject, else AnonymousIdentity. It never returns "".
func ResolveIdentity(p Principal) string {
	a, ok := p.(Authenticated)
	if !ok {
		return AnonymousIdentity
	}
	if name := strings.TrimSpace(a.Claims.PreferredUsername); name != "" {
		return name
	}
	if sub := strings.TrimSpace(a.Claims.Subject); sub != "" {
		return sub
	}
	return AnonymousIdentity
}
