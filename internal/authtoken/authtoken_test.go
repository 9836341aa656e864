package authtoken

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_AuthDisabled(t *testing.T) {
	v := New("", "", "", time.Hour, nil, nil)
	claims, err := v.Verify("anything")
	require.NoError(t, err)
	assert.NotNil(t, claims)
}

func signToken(t *testing.T, secret string, claims *CustomClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerify_ValidToken(t *testing.T) {
	v := New("super-secret", "", "", time.Hour, nil, nil)
	claims := &CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := signToken(t, "super-secret", claims)

	got, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Subject)
}

func TestVerify_ExpiredToken(t *testing.T) {
	v := New("super-secret", "", "", time.Hour, nil, nil)
	claims := &CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token := signToken(t, "super-secret", claims)

	_, err := v.Verify(token)
	require.Error(t, err)
	assert.Equal(t, ErrTokenExpired, Code(err))
}

func TestVerify_MissingExpirationRejected(t *testing.T) {
	v := New("super-secret", "", "", time.Hour, nil, nil)
	claims := &CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "alice",
		},
	}
	token := signToken(t, "super-secret", claims)

	_, err := v.Verify(token)
	require.Error(t, err)
	assert.Equal(t, ErrTokenInvalid, Code(err))
}

func TestVerify_WrongSecret(t *testing.T) {
	v := New("super-secret", "", "", time.Hour, nil, nil)
	claims := &CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := signToken(t, "wrong-secret", claims)

	_, err := v.Verify(token)
	require.Error(t, err)
	assert.Equal(t, ErrTokenInvalid, Code(err))
}

func TestVerify_AudienceIssuer(t *testing.T) {
	v := New("super-secret", "watchparty", "issuer.example", time.Hour, nil, nil)
	claims := &CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Audience:  jwt.ClaimStrings{"watchparty"},
			Issuer:    "issuer.example",
		},
	}
	token := signToken(t, "super-secret", claims)

	_, err := v.Verify(token)
	require.NoError(t, err)
}

func TestRoles_UnionOfStringCSVAndArray(t *testing.T) {
	raw := []byte(`{"role": "Host", "roles": ["Admin", "moderator, vip"]}`)
	claims := &CustomClaims{}
	require.NoError(t, json.Unmarshal(raw, claims))

	roles := Roles(claims)
	for _, want := range []string{"host", "admin", "moderator", "vip"} {
		_, ok := roles[want]
		assert.True(t, ok, "expected role %q", want)
	}
}

func TestRequireRoles(t *testing.T) {
	claims := &CustomClaims{Role: anyString{"host"}}
	assert.True(t, RequireRoles(claims, nil))
	assert.True(t, RequireRoles(claims, []string{"Host"}))
	assert.False(t, RequireRoles(claims, []string{"admin"}))
}

func TestIssueAndVerifyInvite(t *testing.T) {
	v := New("super-secret", "", "", time.Hour, nil, nil)

	token, expiresAt, err := v.IssueInvite("room-1", 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Second)

	claims, err := v.VerifyInvite(token, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "invite", claims.Type)
	assert.Equal(t, "room-1", claims.Room)
}

func TestIssueInvite_DisabledWithoutSecret(t *testing.T) {
	v := New("", "", "", time.Hour, nil, nil)
	_, _, err := v.IssueInvite("room-1", 0)
	assert.Error(t, err)
}

func TestVerifyInvite_RoomMismatch(t *testing.T) {
	v := New("super-secret", "", "", time.Hour, nil, nil)
	token, _, err := v.IssueInvite("room-1", 0)
	require.NoError(t, err)

	_, err = v.VerifyInvite(token, "room-2")
	require.Error(t, err)
	assert.Equal(t, ErrInviteRoomMismatch, Code(err))
}

func TestVerifyInvite_NotAnInviteToken(t *testing.T) {
	v := New("super-secret", "", "", time.Hour, nil, nil)
	claims := &CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := signToken(t, "super-secret", claims)

	_, err := v.VerifyInvite(token, "room-1")
	require.Error(t, err)
	assert.Equal(t, ErrInviteInvalid, Code(err))
}

func TestInviteRoles_FallsBackToHostRoles(t *testing.T) {
	v := New("s", "", "", time.Hour, []string{"host"}, nil)
	assert.Equal(t, []string{"host"}, v.InviteRoles())

	v2 := New("s", "", "", time.Hour, []string{"host"}, []string{"mod"})
	assert.Equal(t, []string{"mod"}, v2.InviteRoles())
}
