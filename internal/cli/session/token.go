package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSkew treats tokens expiring within five minutes as already expired
const DefaultSkew = 300 * time.Second

// Claims are the token claims the client reads. The signature is not
// checked here; the backend remains the verifier.
type Claims struct {
	Roles        RolesClaim `json:"roles,omitempty"`
	Is2faEnabled bool       `json:"is2faEnabled,omitempty"`
	jwt.RegisteredClaims
}

// RolesClaim accepts either "ROLE_USER,ROLE_ADMIN" or a JSON array
type RolesClaim []string

func (r *RolesClaim) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		*r = ParseRoles(joined).List()
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("roles claim must be a string or an array: %w", err)
	}
	*r = NewRoleSet(list...).List()
	return nil
}

var parser = jwt.NewParser()

// DecodeToken reads the claims of a token without verifying its signature
func DecodeToken(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenMalformed)
	}

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	return claims, nil
}

// IsExpired reports whether token expires before now+skew. Tokens that
// cannot be decoded, or carry no exp claim, count as expired.
func IsExpired(token string, skew time.Duration, now time.Time) bool {
	return checkExpiry(token, skew, now) != nil
}

// checkExpiry returns nil for a usable token, otherwise ErrTokenExpired or
// ErrTokenMalformed (wrapped)
func checkExpiry(token string, skew time.Duration, now time.Time) error {
	claims, err := DecodeToken(token)
	if err != nil {
		return err
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: missing exp claim", ErrTokenMalformed)
	}
	if claims.ExpiresAt.Time.Before(now.Add(skew)) {
		return fmt.Errorf("%w: exp %s", ErrTokenExpired, claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	}
	return nil
}

func identityFromClaims(claims *Claims) (Identity, error) {
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing sub claim", ErrTokenMalformed)
	}
	return Identity{
		Username: claims.Subject,
		Roles:    NewRoleSet(claims.Roles...),
	}, nil
}
