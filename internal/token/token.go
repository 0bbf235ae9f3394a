// Package token issues and verifies the short-lived signed identity tokens
// ("check-in codes") members present at scanning stations.
//
// Verification is pure: it consults no store and mutates nothing, so it
// runs identically on the server and on an offline station replaying its
// queue. Single-use enforcement on the online path lives in the separate
// replay guard (internal/token/replay), not here.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

// DefaultTTL is the validity window for issued tokens. Stations re-issue
// at roughly 80% of the window to keep a displayed code continuously
// scannable; that rotation is a client concern, not part of this contract.
const DefaultTTL = 5 * time.Minute

// Claims binds the member identity to the issuance instant and a fresh
// nonce. The signature covers all three, so tampering with any of them is
// detectable.
type Claims struct {
	MemberID string `json:"member_id"`
	jwt.RegisteredClaims
}

// IdentityToken is a decoded, verified (or freshly issued) token.
type IdentityToken struct {
	Raw       string
	MemberID  id.MemberID
	IssuedAt  time.Time
	ExpiresAt time.Time
	Nonce     string
}

// Service signs and verifies identity tokens with keys derived from the
// server-held master secret.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// New constructs a token service. A non-positive ttl falls back to
// DefaultTTL.
func New(secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{secret: []byte(secret), ttl: ttl}
}

// Issue produces a fresh token for the member, valid from now until
// now+ttl. Every call mints a new nonce; tokens are never reused across
// issuances.
func (s *Service) Issue(memberID id.MemberID, now time.Time) (*IdentityToken, error) {
	if memberID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "member_id is required")
	}

	issuedAt := now.UTC()
	expiresAt := issuedAt.Add(s.ttl)
	nonce := uuid.NewString()

	claims := Claims{
		MemberID: memberID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        nonce,
		},
	}

	key, err := signingKeyFor(s.secret, issuedAt)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign token")
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign token")
	}

	return &IdentityToken{
		Raw:       signed,
		MemberID:  memberID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Nonce:     nonce,
	}, nil
}

// Verify checks the signature and validity window against the supplied
// time. The window check is explicit rather than delegated to the JWT
// library so the boundary is exact: a token verifies at expiresAt and
// fails one instant after. Expired and invalid are distinct codes so
// callers can prompt "refresh code" versus "not a member token".
func (s *Service) Verify(raw string, now time.Time) (*IdentityToken, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return nil, dErrors.Wrap(err, dErrors.CodeTokenInvalid, "token signature invalid")
	}

	if claims.IssuedAt == nil || claims.ExpiresAt == nil || claims.ID == "" {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "token missing required claims")
	}

	issuedAt := claims.IssuedAt.Time
	expiresAt := claims.ExpiresAt.Time

	// Clock skew guard: a token from the future is not trustworthy.
	if now.Before(issuedAt) {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "token issued in the future")
	}
	if now.After(expiresAt) {
		return nil, dErrors.New(dErrors.CodeTokenExpired, "token expired at "+expiresAt.UTC().Format(time.RFC3339))
	}

	memberID, err := id.ParseMemberID(claims.MemberID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTokenInvalid, "token carries invalid member id")
	}

	return &IdentityToken{
		Raw:       raw,
		MemberID:  memberID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Nonce:     claims.ID,
	}, nil
}

// PeekMemberID extracts the member ID claim without verifying the
// signature. Stations hold no signing material, yet their offline queue
// needs the member ID for bookkeeping and escalation. Never use this for
// an authorization decision; the server re-verifies at sync time.
func PeekMemberID(raw string) (id.MemberID, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return id.MemberID{}, dErrors.Wrap(err, dErrors.CodeTokenInvalid, "malformed token")
	}
	memberID, err := id.ParseMemberID(claims.MemberID)
	if err != nil {
		return id.MemberID{}, dErrors.Wrap(err, dErrors.CodeTokenInvalid, "token carries invalid member id")
	}
	return memberID, nil
}

// keyFunc derives the verification key from the token's own issued-at
// claim. The claim is unverified at this point; a forged issued-at simply
// derives a key that fails the signature check.
func (s *Service) keyFunc(t *jwt.Token) (interface{}, error) {
	claims, ok := t.Claims.(*Claims)
	if !ok || claims.IssuedAt == nil {
		return nil, errors.New("token missing issued-at claim")
	}
	return signingKeyFor(s.secret, claims.IssuedAt.Time)
}
