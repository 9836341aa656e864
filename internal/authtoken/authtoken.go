// Package authtoken implements the session server's symmetric JWT
// verification and invite-token issuance. Unlike a JWKS-backed asymmetric
// flow, the server holds a single shared signing secret; when that secret
// is unset, verification is a no-op success and every principal is
// implicitly authorized.
package authtoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Error codes returned alongside a verification failure, matching the
// dispatcher's error-frame vocabulary.
const (
	ErrTokenExpired       = "token_expired"
	ErrTokenInvalid       = "token_invalid"
	ErrInviteInvalid      = "invite_invalid"
	ErrInviteRoomMismatch = "invite_room_mismatch"
)

// CustomClaims carries both host/participant identity and invite-token
// claims. Role may arrive as a bare string, a comma-separated string, or a
// JSON array; Role/Roles keep what was sent (as anyString) so Roles() can
// normalize it.
type CustomClaims struct {
	Name  string    `json:"name,omitempty"`
	Role  anyString `json:"role,omitempty"`
	Roles anyString `json:"roles,omitempty"`

	// Invite-token fields. Only populated on tokens minted by IssueInvite.
	Type string `json:"type,omitempty"`
	Room string `json:"room,omitempty"`

	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens signed with the configured secret and
// mints invite tokens scoped to a single room.
type Verifier struct {
	secret      []byte
	audience    string
	issuer      string
	inviteTTL   time.Duration
	hostRoles   []string
	inviteRoles []string
}

// New builds a Verifier. An empty secret disables authentication: Verify
// always succeeds with empty claims. RequireRoles does not look at the
// secret, so those empty claims still fail a non-empty role list.
func New(secret, audience, issuer string, inviteTTL time.Duration, hostRoles, inviteRoles []string) *Verifier {
	return &Verifier{
		secret:      []byte(secret),
		audience:    audience,
		issuer:      issuer,
		inviteTTL:   inviteTTL,
		hostRoles:   hostRoles,
		inviteRoles: inviteRoles,
	}
}

// AuthEnabled reports whether a signing secret was configured.
func (v *Verifier) AuthEnabled() bool {
	return len(v.secret) > 0
}

// HostRoles returns the configured host-creation role allowlist.
func (v *Verifier) HostRoles() []string { return v.hostRoles }

// InviteRoles returns the configured invite-creation role allowlist,
// falling back to HostRoles when unset, per spec.
func (v *Verifier) InviteRoles() []string {
	if len(v.inviteRoles) > 0 {
		return v.inviteRoles
	}
	return v.hostRoles
}

// Verify validates signature, expiry, and (when configured) audience/issuer.
// When auth is disabled it returns an empty, always-valid claims set.
func (v *Verifier) Verify(tokenString string) (*CustomClaims, error) {
	if !v.AuthEnabled() {
		return &CustomClaims{}, nil
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired()}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, verifyErr{ErrTokenExpired, err}
		}
		return nil, verifyErr{ErrTokenInvalid, err}
	}
	if !token.Valid {
		return nil, verifyErr{ErrTokenInvalid, errors.New("token rejected")}
	}

	return claims, nil
}

// Roles returns the lowercase union of the claims' role and roles fields.
func Roles(claims *CustomClaims) map[string]struct{} {
	out := make(map[string]struct{})
	if claims == nil {
		return out
	}
	for _, raw := range []anyString{claims.Role, claims.Roles} {
		for _, r := range raw.values() {
			r = strings.ToLower(strings.TrimSpace(r))
			if r != "" {
				out[r] = struct{}{}
			}
		}
	}
	return out
}

// RequireRoles reports whether required is empty or intersects the claims'
// role set.
func RequireRoles(claims *CustomClaims, required []string) bool {
	if len(required) == 0 {
		return true
	}
	held := Roles(claims)
	for _, r := range required {
		if _, ok := held[strings.ToLower(strings.TrimSpace(r))]; ok {
			return true
		}
	}
	return false
}

// IssueInvite signs an invite token scoped to roomID. ttl overrides the
// Verifier's configured default when positive.
func (v *Verifier) IssueInvite(roomID string, ttl time.Duration) (token string, expiresAt time.Time, err error) {
	if !v.AuthEnabled() {
		return "", time.Time{}, errors.New("invite issuance requires a configured secret")
	}
	if ttl <= 0 {
		ttl = v.inviteTTL
	}
	expiresAt = time.Now().Add(ttl)

	claims := &CustomClaims{
		Type: "invite",
		Room: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if v.audience != "" {
		claims.RegisteredClaims.Audience = jwt.ClaimStrings{v.audience}
	}
	if v.issuer != "" {
		claims.RegisteredClaims.Issuer = v.issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign invite token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyInvite validates an invite token and confirms it targets
// expectedRoom.
func (v *Verifier) VerifyInvite(tokenString, expectedRoom string) (*CustomClaims, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != "invite" {
		return nil, verifyErr{ErrInviteInvalid, errors.New("not an invite token")}
	}
	if claims.Room != expectedRoom {
		return nil, verifyErr{ErrInviteRoomMismatch, errors.New("invite scoped to a different room")}
	}
	return claims, nil
}

// verifyErr pairs a dispatcher-facing error code with the underlying cause.
type verifyErr struct {
	code  string
	cause error
}

func (e verifyErr) Error() string { return fmt.Sprintf("%s: %v", e.code, e.cause) }
func (e verifyErr) Unwrap() error { return e.cause }

// Code extracts the dispatcher-facing error code from an error returned by
// Verify/VerifyInvite, defaulting to token_invalid for anything else.
func Code(err error) string {
	var ve verifyErr
	if errors.As(err, &ve) {
		return ve.code
	}
	return ErrTokenInvalid
}
