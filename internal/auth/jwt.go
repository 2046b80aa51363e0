package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the JWT token claims
type JWTClaims struct {
	Roles        string `json:"roles"` // comma-separated
	Is2faEnabled bool   `json:"is2faEnabled"`
	jwt.RegisteredClaims
}

// RoleList splits the roles claim
func (c *JWTClaims) RoleList() []string {
	var roles []string
	for _, r := range strings.Split(c.Roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// Issuer signs and validates HS256 tokens
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. The secret must not be empty.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret not initialized")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("JWT ttl must be positive")
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime of issued tokens
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// GenerateToken creates a new JWT token for a user
func (i *Issuer) GenerateToken(username string, roles []string, twoFactor bool) (string, error) {
	now := i.now()
	claims := JWTClaims{
		Roles:        strings.Join(roles, ","),
		Is2faEnabled: twoFactor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid && claims.Subject != "" {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}
