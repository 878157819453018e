package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSessionSigningSecret = "secret"
	testSessionCookieName    = "app_session"
	testSessionUserID        = "user-123"
	testSessionUserEmail     = "user@example.com"
)

func TestSessionValidatorValidateToken(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, func() time.Time { return clockNow })

	signed := signTestSession(t, SessionClaims{
		UserID:    testSessionUserID,
		UserEmail: testSessionUserEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultSessionIssuer,
			Subject:   testSessionUserID,
			IssuedAt:  jwt.NewNumericDate(clockNow.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(clockNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(clockNow.Add(time.Hour)),
		},
	})

	claims, err := validator.ValidateToken(signed)
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	if claims.UserID != testSessionUserID {
		t.Fatalf("unexpected user id: %s", claims.UserID)
	}
	if claims.UserEmail != testSessionUserEmail {
		t.Fatalf("unexpected user email: %s", claims.UserEmail)
	}
}

func TestSessionValidatorValidateTokenExpired(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, func() time.Time { return clockNow })

	signed := signTestSession(t, SessionClaims{
		UserID: testSessionUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultSessionIssuer,
			Subject:   testSessionUserID,
			IssuedAt:  jwt.NewNumericDate(clockNow.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(clockNow.Add(-time.Hour)),
		},
	})

	if _, err := validator.ValidateToken(signed); !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestSessionValidatorRejectsForeignIssuer(t *testing.T) {
	validator := newTestValidator(t, nil)

	signed := signTestSession(t, SessionClaims{
		UserID: testSessionUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   testSessionUserID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := validator.ValidateToken(signed); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestSessionValidatorRejectsMissingSubject(t *testing.T) {
	validator := newTestValidator(t, nil)

	signed := signTestSession(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultSessionIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := validator.ValidateToken(signed); !errors.Is(err, ErrMissingSessionSubject) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
}

func TestSessionValidatorValidateRequestUsesCookie(t *testing.T) {
	validator := newTestValidator(t, nil)
	signed := signTestSession(t, validTestClaims())

	request := httptest.NewRequest(http.MethodGet, "/trpc/post.list", http.NoBody)
	request.AddCookie(&http.Cookie{
		Name:  testSessionCookieName,
		Value: signed,
	})

	claims, err := validator.ValidateRequest(request)
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if claims.UserID != testSessionUserID {
		t.Fatalf("unexpected user id: %s", claims.UserID)
	}
}

func TestSessionValidatorValidateRequestFallsBackToBearer(t *testing.T) {
	validator := newTestValidator(t, nil)
	signed := signTestSession(t, validTestClaims())

	request := httptest.NewRequest(http.MethodGet, "/trpc/post.list", http.NoBody)
	request.Header.Set("Authorization", "Bearer "+signed)

	claims, err := validator.ValidateRequest(request)
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if claims.Subject != testSessionUserID {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
}

func TestSessionValidatorValidateRequestWithoutToken(t *testing.T) {
	validator := newTestValidator(t, nil)
	request := httptest.NewRequest(http.MethodGet, "/trpc/post.list", http.NoBody)

	if _, err := validator.ValidateRequest(request); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func newTestValidator(t *testing.T, clock func() time.Time) *SessionValidator {
	t.Helper()
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		CookieName:    testSessionCookieName,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func validTestClaims() SessionClaims {
	return SessionClaims{
		UserID: testSessionUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultSessionIssuer,
			Subject:   testSessionUserID,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func signTestSession(t *testing.T, claims SessionClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSessionSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestSessionValidatorToleratesSkewWithinLeeway(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		CookieName:    testSessionCookieName,
		Leeway:        time.Minute,
		Clock:         func() time.Time { return clockNow },
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}

	signed := signTestSession(t, SessionClaims{
		UserID: testSessionUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultSessionIssuer,
			Subject:   testSessionUserID,
			ExpiresAt: jwt.NewNumericDate(clockNow.Add(-30 * time.Second)),
		},
	})
	if _, err := validator.ValidateToken(signed); err != nil {
		t.Fatalf("expected token inside leeway to validate, got %v", err)
	}
}

func TestSessionValidatorRequiresExpiry(t *testing.T) {
	validator := newTestValidator(t, nil)
	claims := validTestClaims()
	claims.ExpiresAt = nil

	if _, err := validator.ValidateToken(signTestSession(t, claims)); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token without exp, got %v", err)
	}
}
