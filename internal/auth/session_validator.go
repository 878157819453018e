package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionIssuer is the issuer claim TAuth stamps on session tokens.
const DefaultSessionIssuer = "tauth"

const bearerPrefix = "Bearer "

var (
	ErrMissingSessionSigningKey = errors.New("session validator: signing key required")
	ErrMissingSessionCookieName = errors.New("session validator: cookie name required")
	ErrMissingSessionToken      = errors.New("session validator: token required")
	ErrInvalidSessionToken      = errors.New("session validator: invalid token")
	ErrExpiredSessionToken      = errors.New("session validator: token expired")
	ErrMissingSessionSubject    = errors.New("session validator: subject required")
)

// SessionClaims is the JWT payload TAuth signs into the session cookie.
type SessionClaims struct {
	UserID          string   `json:"user_id"`
	UserEmail       string   `json:"user_email"`
	UserDisplayName string   `json:"user_display_name"`
	UserAvatarURL   string   `json:"user_avatar_url"`
	UserRoles       []string `json:"user_roles"`
	jwt.RegisteredClaims
}

// SessionValidatorConfig describes how to validate TAuth-issued JWTs. Leeway tolerates
// clock skew between TAuth and this service on exp/nbf/iat.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Leeway        time.Duration
	Clock         func() time.Time
}

// SessionValidator checks HS256 session tokens read from a cookie or bearer header.
type SessionValidator struct {
	signingSecret []byte
	cookieName    string
	parser        *jwt.Parser
}

func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingSessionCookieName
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = DefaultSessionIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &SessionValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		cookieName:    cookieName,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithTimeFunc(clock),
		),
	}, nil
}

// CookieName returns the cookie consulted before the Authorization header.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateToken parses token and returns its claims. Expiry is reported separately from
// other failures so callers can log it quietly.
func (v *SessionValidator) ValidateToken(token string) (SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	var claims SessionClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.signingSecret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return SessionClaims{}, ErrExpiredSessionToken
	case err != nil:
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}

	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.UserID) == "" {
		return SessionClaims{}, ErrMissingSessionSubject
	}
	return claims, nil
}

// ValidateRequest validates the session carried by r.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	token := v.tokenFromRequest(r)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}
	return v.ValidateToken(token)
}

// tokenFromRequest prefers the session cookie and falls back to a bearer header, which
// non-browser clients and EventSource polyfills send.
func (v *SessionValidator) tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if cookie, err := r.Cookie(v.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	}
	return ""
}
