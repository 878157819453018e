package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/auth"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultProvider = "default"

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service maps session identities onto canonical user records and answers whether a
// user is still live.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// identityKey names one login at one provider. "google:123" in a session's user id
// becomes provider "google", subject "123"; a bare id uses the default provider.
type identityKey struct {
	provider string
	subject  string
}

func (k identityKey) String() string {
	return k.provider + ":" + k.subject
}

// ResolveCanonicalUserID returns the canonical user id for claims. The first sighting
// of an identity creates the identity mapping and the user row together; later
// sightings refresh the stored profile.
func (s *Service) ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (string, error) {
	key, ok := identityFromClaims(claims)
	if !ok {
		return "", ErrInvalidIdentity
	}
	if cached, ok := s.cache.Load(key.String()); ok {
		return cached.(string), nil
	}

	db := s.db.WithContext(ctx)
	var identity Identity
	err := db.Where("provider = ? AND subject = ?", key.provider, key.subject).Take(&identity).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		identity, err = s.createIdentity(db, key, claims)
		if err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	default:
		s.refreshProfile(db, identity, claims)
	}

	s.cache.Store(key.String(), identity.UserID)
	return identity.UserID, nil
}

func (s *Service) createIdentity(db *gorm.DB, key identityKey, claims auth.SessionClaims) (Identity, error) {
	identity := Identity{
		Provider:    key.provider,
		Subject:     key.subject,
		UserID:      key.subject,
		Email:       normalize(claims.UserEmail),
		DisplayName: normalize(claims.UserDisplayName),
		AvatarURL:   normalize(claims.UserAvatarURL),
		LastSeenAt:  s.now(),
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&identity).Error; err != nil {
			return err
		}
		user := User{ID: identity.UserID, Email: identity.Email, DisplayName: identity.DisplayName}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error
	})
	if err != nil {
		return Identity{}, fmt.Errorf("users: create identity %s: %w", key, err)
	}
	return identity, nil
}

// refreshProfile copies changed profile fields onto the identity and user rows. Failures
// are ignored: a stale display name must not fail the request.
func (s *Service) refreshProfile(db *gorm.DB, identity Identity, claims auth.SessionClaims) {
	identityUpdates := map[string]any{"last_seen_at": s.now()}
	userUpdates := map[string]any{}
	if email := normalize(claims.UserEmail); email != "" && email != identity.Email {
		identityUpdates["user_email"] = email
		userUpdates["email"] = email
	}
	if display := normalize(claims.UserDisplayName); display != "" && display != identity.DisplayName {
		identityUpdates["user_display_name"] = display
		userUpdates["display_name"] = display
	}
	if avatar := normalize(claims.UserAvatarURL); avatar != "" && avatar != identity.AvatarURL {
		identityUpdates["user_avatar_url"] = avatar
	}

	_ = db.Model(&Identity{}).
		Where("provider = ? AND subject = ?", identity.Provider, identity.Subject).
		Updates(identityUpdates).Error
	if len(userUpdates) > 0 {
		_ = db.Model(&User{}).Where("id = ?", identity.UserID).Updates(userUpdates).Error
	}
}

// UserExists reports whether a canonical user record with the given id is present.
func (s *Service) UserExists(ctx context.Context, userID string) (bool, error) {
	userID = normalize(userID)
	if userID == "" {
		return false, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func identityFromClaims(claims auth.SessionClaims) (identityKey, bool) {
	key := identityKey{provider: defaultProvider, subject: normalize(claims.Subject)}

	if raw := normalize(claims.UserID); raw != "" {
		provider, subject, found := strings.Cut(raw, ":")
		switch {
		case found && normalize(provider) != "" && normalize(subject) != "":
			key = identityKey{provider: normalize(provider), subject: normalize(subject)}
		case !found && key.subject == "":
			key.subject = raw
		}
	}
	if key.subject == "" {
		key.subject = normalize(claims.UserEmail)
	}
	return key, key.subject != ""
}
