package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/cache"
	"github.com/storagelabels/backend/internal/models"
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, u *models.User) (*models.User, error)
	UpdatePreferences(ctx context.Context, id string, prefs json.RawMessage) error
}

// PreferencesCache is a read-through cache in front of the preferences
// column; a nil cache client degrades to database-only reads.
type PreferencesCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

const prefsCacheTTL = 10 * time.Minute

type UserService struct {
	users  UserStore
	cache  PreferencesCache
	logger *slog.Logger
}

func NewUserService(users UserStore, prefsCache PreferencesCache, logger *slog.Logger) *UserService {
	return &UserService{users: users, cache: prefsCache, logger: logger}
}

type RegisterInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	defaults, _ := json.Marshal(models.DefaultPreferences())
	user := &models.User{
		ID:           uuid.NewString(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		EmailAddress: in.Email,
		PasswordHash: string(hash),
		Preferences:  defaults,
	}
	return s.users.Create(ctx, user)
}

// Authenticate verifies credentials; both unknown email and bad password
// surface as the same Unauthorized error.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.New(apperr.KindUnauthorized, "invalid credentials")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.New(apperr.KindUnauthorized, "invalid credentials")
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) Update(ctx context.Context, u *models.User) (*models.User, error) {
	fields := map[string]string{}
	if u.FirstName == "" {
		fields["firstName"] = "first name is required"
	}
	if u.EmailAddress == "" {
		fields["emailAddress"] = "email address is required"
	}
	if len(fields) > 0 {
		return nil, apperr.Invalid(fields)
	}
	return s.users.Update(ctx, u)
}

func prefsCacheKey(userID string) string { return "prefs:" + userID }

// GetPreferences returns the typed preferences, substituting defaults
// for a missing or malformed stored blob.
func (s *UserService) GetPreferences(ctx context.Context, userID string) (models.Preferences, error) {
	if s.cache != nil {
		var cached models.Preferences
		err := s.cache.Get(ctx, prefsCacheKey(userID), &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("preferences cache read failed", "user_id", userID, "error", err)
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.Preferences{}, err
	}
	prefs := models.ParsePreferences(user.Preferences)

	if s.cache != nil {
		if err := s.cache.Set(ctx, prefsCacheKey(userID), prefs, prefsCacheTTL); err != nil {
			s.logger.Warn("preferences cache write failed", "user_id", userID, "error", err)
		}
	}
	return prefs, nil
}

func (s *UserService) UpdatePreferences(ctx context.Context, userID string, prefs models.Preferences) (models.Preferences, error) {
	if prefs.Version < 1 {
		prefs.Version = 1
	}
	if prefs.PageSize <= 0 {
		prefs.PageSize = models.DefaultPreferences().PageSize
	}

	raw, err := json.Marshal(prefs)
	if err != nil {
		return models.Preferences{}, fmt.Errorf("marshal preferences: %w", err)
	}
	if err := s.users.UpdatePreferences(ctx, userID, raw); err != nil {
		return models.Preferences{}, err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, prefsCacheKey(userID)); err != nil {
			s.logger.Warn("preferences cache invalidation failed", "user_id", userID, "error", err)
		}
	}
	return prefs, nil
}
