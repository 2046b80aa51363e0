package session

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsExpired(t *testing.T) {
	tests := []struct {
		name  string
		token string
		skew  time.Duration
		want  bool
	}{
		{"inside skew window", signToken(t, "alice", "", testNow.Add(100*time.Second)), 300 * time.Second, true},
		{"outside skew window", signToken(t, "alice", "", testNow.Add(1000*time.Second)), 300 * time.Second, false},
		{"exactly at boundary", signToken(t, "alice", "", testNow.Add(300*time.Second)), 300 * time.Second, false},
		{"already expired", signToken(t, "alice", "", testNow.Add(-time.Second)), 0, true},
		{"no skew", signToken(t, "alice", "", testNow.Add(100*time.Second)), 0, false},
		{"missing exp", signToken(t, "alice", "", time.Time{}), 300 * time.Second, true},
		{"garbage", "not-a-token", 300 * time.Second, true},
		{"empty", "", 300 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsExpired(tt.token, tt.skew, testNow))
		})
	}
}

func TestCheckExpiryClassifiesFailures(t *testing.T) {
	err := checkExpiry(signToken(t, "alice", "", testNow.Add(time.Minute)), DefaultSkew, testNow)
	assert.ErrorIs(t, err, ErrTokenExpired)

	err = checkExpiry("a.b.c", DefaultSkew, testNow)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	err = checkExpiry(signToken(t, "alice", "", time.Time{}), DefaultSkew, testNow)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	assert.NoError(t, checkExpiry(userToken(t), DefaultSkew, testNow))
}

func TestDecodeToken_Roles(t *testing.T) {
	claims, err := DecodeToken(signToken(t, "root", "ROLE_USER, ROLE_ADMIN", testNow.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "root", claims.Subject)
	assert.Equal(t, RolesClaim{"ROLE_ADMIN", "ROLE_USER"}, claims.Roles)

	// roles as a JSON array, hand-assembled so the claim shape is explicit
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"bob","roles":["ROLE_USER"],"is2faEnabled":true,"exp":4102444800}`))
	claims, err = DecodeToken(header + "." + payload + ".c2ln")
	require.NoError(t, err)
	assert.Equal(t, RolesClaim{"ROLE_USER"}, claims.Roles)
	assert.True(t, claims.Is2faEnabled)
	assert.False(t, IsExpired(header+"."+payload+".c2ln", DefaultSkew, testNow))
}

func TestDecodeToken_BadRolesClaim(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"bob","roles":42}`))

	_, err := DecodeToken(header + "." + payload + ".c2ln")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestIdentityFromClaims_RequiresSubject(t *testing.T) {
	claims, err := DecodeToken(signToken(t, "", "ROLE_USER", testNow.Add(time.Hour)))
	require.NoError(t, err)

	_, err = identityFromClaims(claims)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestRoleSet(t *testing.T) {
	roles := ParseRoles("ROLE_USER,,ROLE_ADMIN ")
	assert.True(t, roles.Has(RoleUser))
	assert.True(t, roles.IsAdmin())
	assert.False(t, roles.Has("ROLE_ROOT"))
	assert.Equal(t, []string{"ROLE_ADMIN", "ROLE_USER"}, roles.List())

	data, err := roles.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["ROLE_ADMIN","ROLE_USER"]`, string(data))

	var decoded RoleSet
	require.NoError(t, decoded.UnmarshalJSON([]byte(`["ROLE_USER"]`)))
	assert.False(t, decoded.IsAdmin())
	assert.Empty(t, ParseRoles(""))
}
