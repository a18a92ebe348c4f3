package service

import (
	"context"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/models"
)

type LocationStore interface {
	Create(ctx context.Context, name, ownerID string) (*models.Location, error)
	GetByID(ctx context.Context, id int64) (*models.Location, error)
	ListForUser(ctx context.Context, userID string) ([]models.Location, []models.AccessLevel, error)
	Update(ctx context.Context, id int64, name string) (*models.Location, error)
	Delete(ctx context.Context, id int64) error
	ListGrants(ctx context.Context, locationID int64) ([]models.UserLocation, error)
	UpsertGrant(ctx context.Context, g models.UserLocation) error
	RemoveGrant(ctx context.Context, userID string, locationID int64) error
}

type LocationService struct {
	locations LocationStore
	access    AccessEvaluator
}

func NewLocationService(locations LocationStore, access AccessEvaluator) *LocationService {
	return &LocationService{locations: locations, access: access}
}

// LocationWithAccess pairs a location with the caller's own grant.
type LocationWithAccess struct {
	models.Location
	AccessLevel models.AccessLevel `json:"access_level"`
}

func (s *LocationService) Create(ctx context.Context, userID, name string) (*models.Location, error) {
	if name == "" {
		return nil, apperr.Invalid(map[string]string{"name": "name is required"})
	}
	return s.locations.Create(ctx, name, userID)
}

func (s *LocationService) Get(ctx context.Context, userID string, id int64) (*models.Location, error) {
	if err := s.access.Require(ctx, userID, id, models.AccessView); err != nil {
		return nil, err
	}
	return s.locations.GetByID(ctx, id)
}

func (s *LocationService) List(ctx context.Context, userID string) ([]LocationWithAccess, error) {
	locs, levels, err := s.locations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]LocationWithAccess, 0, len(locs))
	for i, loc := range locs {
		out = append(out, LocationWithAccess{Location: loc, AccessLevel: levels[i]})
	}
	return out, nil
}

func (s *LocationService) Update(ctx context.Context, userID string, id int64, name string) (*models.Location, error) {
	if err := s.access.Require(ctx, userID, id, models.AccessEdit); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, apperr.Invalid(map[string]string{"name": "name is required"})
	}
	return s.locations.Update(ctx, id, name)
}

// Delete is administrative and needs Owner.
func (s *LocationService) Delete(ctx context.Context, userID string, id int64) error {
	if err := s.access.Require(ctx, userID, id, models.AccessOwner); err != nil {
		return err
	}
	return s.locations.Delete(ctx, id)
}

func (s *LocationService) ListGrants(ctx context.Context, userID string, locationID int64) ([]models.UserLocation, error) {
	if err := s.access.Require(ctx, userID, locationID, models.AccessOwner); err != nil {
		return nil, err
	}
	return s.locations.ListGrants(ctx, locationID)
}

func (s *LocationService) SetGrant(ctx context.Context, userID string, grant models.UserLocation) error {
	if err := s.access.Require(ctx, userID, grant.LocationID, models.AccessOwner); err != nil {
		return err
	}
	if grant.UserID == "" {
		return apperr.Invalid(map[string]string{"user_id": "user_id is required"})
	}
	if grant.AccessLevel == models.AccessNone {
		return s.locations.RemoveGrant(ctx, grant.UserID, grant.LocationID)
	}
	return s.locations.UpsertGrant(ctx, grant)
}

func (s *LocationService) RemoveGrant(ctx context.Context, userID, subjectID string, locationID int64) error {
	if err := s.access.Require(ctx, userID, locationID, models.AccessOwner); err != nil {
		return err
	}
	return s.locations.RemoveGrant(ctx, subjectID, locationID)
}
