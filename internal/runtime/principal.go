// Package runtime provides the small set of host-canister stand-ins the
// rate-resolution engine needs to run as a plain Go process: caller-principal
// extraction (normally supplied by IC message ingress, here derived from a
// bearer JWT) and a cycle ledger (normally supplied by the IC runtime, here
// an explicit in-memory accounting struct).
package runtime

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Principal identifies a caller. The zero value is the anonymous principal,
// matching the IC's well-known "nobody is calling on behalf of anybody"
// identity.
type Principal struct {
	ID string
}

// Anonymous is the well-known anonymous principal.
var Anonymous = Principal{ID: ""}

func (p Principal) IsAnonymous() bool { return p.ID == "" }

// ErrMalformedToken is returned when an Authorization header is present but
// cannot be parsed as a JWT.
var ErrMalformedToken = errors.New("runtime: malformed bearer token")

// PrincipalFromRequest extracts the caller principal from an
// "Authorization: Bearer <jwt>" header. A request with no such header, or a
// token with an empty "sub" claim, is the anonymous principal — it is never
// an error to call anonymously, only to be rejected for it downstream.
func PrincipalFromRequest(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Anonymous, nil
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return Principal{}, ErrMalformedToken
	}
	raw := strings.TrimPrefix(header, prefix)

	claims := jwt.MapClaims{}
	// Signature verification is out of scope for this stand-in: the
	// ingress adapter trusts its upstream gateway to have already
	// authenticated the token, the same trust boundary an IC replica's
	// message-signature check sits behind. We only need the claims.
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return Principal{}, ErrMalformedToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Anonymous, nil
	}
	return Principal{ID: sub}, nil
}

// IsPrivileged reports whether p is in the compile-time exempt list.
func IsPrivileged(p Principal, privileged []string) bool {
	for _, id := range privileged {
		if id == p.ID {
			return true
		}
	}
	return false
}
