package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultSessionTTL = 24 * time.Hour

var (
	errMissingSigningSecret = errors.New("session issuer: signing secret must be provided")
	errMissingUserID        = errors.New("session issuer: user id must be provided")
)

// SessionIssuerConfig configures the session token issuer.
type SessionIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// SessionIdentity is the user data embedded into an issued session token.
type SessionIdentity struct {
	UserID      string
	Email       string
	DisplayName string
	AvatarURL   string
}

// SessionIssuer signs TAuth-compatible session tokens. Production sessions are minted by
// TAuth itself; the issuer backs local tooling and end-to-end tests.
type SessionIssuer struct {
	signingSecret []byte
	issuer        string
	ttl           time.Duration
	clock         func() time.Time
}

// NewSessionIssuer constructs a SessionIssuer with sane defaults.
func NewSessionIssuer(cfg SessionIssuerConfig) (*SessionIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = DefaultSessionIssuer
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// Issue produces a signed session token and its expiry time.
func (i *SessionIssuer) Issue(identity SessionIdentity) (string, time.Time, error) {
	userID := strings.TrimSpace(identity.UserID)
	if userID == "" {
		return "", time.Time{}, errMissingUserID
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl)

	claims := SessionClaims{
		UserID:          userID,
		UserEmail:       strings.TrimSpace(identity.Email),
		UserDisplayName: strings.TrimSpace(identity.DisplayName),
		UserAvatarURL:   strings.TrimSpace(identity.AvatarURL),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
