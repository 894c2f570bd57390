// Package identity normalizes the user argument of enforcement calls. A user
// may arrive as an opaque key or as a JWT issued by the host application's
// identity provider; token signature validation is that provider's job, this
// package only lifts the subject and claims into the decision context.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSubject is returned when a token carries no subject claim.
var ErrNoSubject = errors.New("identity: token has no subject")

// User is the resolved identity attached to a decision query.
type User struct {
	// Key uniquely identifies the user: the opaque string the caller passed,
	// or the token's subject claim.
	Key string

	// Attributes carries string claims lifted from the token, if any.
	Attributes map[string]string
}

// registered claims that are not useful as decision-context attributes.
var skippedClaims = map[string]struct{}{
	"sub": {},
	"iss": {},
	"aud": {},
	"exp": {},
	"nbf": {},
	"iat": {},
	"jti": {},
}

// Parse resolves a raw user argument. Strings shaped like a JWT are parsed
// for their subject and claims; anything else passes through as an opaque
// key. Parse never fails: an unparsable token degrades to an opaque key so
// the enforcement call can still reach the PDP.
func Parse(raw string) User {
	if looksLikeJWT(raw) {
		if user, err := FromToken(raw); err == nil {
			return user
		}
	}
	return User{Key: raw}
}

// FromToken extracts the subject and string claims from a JWT without
// verifying its signature. Verification is delegated to the application's
// identity layer before the token ever reaches an enforcement call.
func FromToken(token string) (User, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return User{}, fmt.Errorf("identity: failed to parse token: %w", err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return User{}, ErrNoSubject
	}

	attrs := make(map[string]string)
	for name, value := range claims {
		if _, skip := skippedClaims[name]; skip {
			continue
		}
		if s, ok := value.(string); ok {
			attrs[name] = s
		}
	}
	if len(attrs) == 0 {
		attrs = nil
	}

	return User{Key: subject, Attributes: attrs}, nil
}

// looksLikeJWT is a cheap structural test: three dot-separated non-empty
// parts. It deliberately errs toward treating inputs as opaque keys.
func looksLikeJWT(raw string) bool {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
	}
	return true
}
