package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/models"
)

// AccessEvaluator is the authorization gate every box/item/image
// operation runs through. access.Evaluator implements it.
type AccessEvaluator interface {
	Resolve(ctx context.Context, userID string, locationID int64) (models.AccessLevel, error)
	Require(ctx context.Context, userID string, locationID int64, min models.AccessLevel) error
}

type BoxStore interface {
	Create(ctx context.Context, b *models.Box) (*models.Box, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Box, error)
	ListByLocation(ctx context.Context, locationID int64) ([]models.Box, error)
	Update(ctx context.Context, b *models.Box) (*models.Box, error)
	Delete(ctx context.Context, id uuid.UUID) error
	TouchLastAccessed(ctx context.Context, id uuid.UUID) error
}

type BoxService struct {
	boxes  BoxStore
	access AccessEvaluator
}

func NewBoxService(boxes BoxStore, access AccessEvaluator) *BoxService {
	return &BoxService{boxes: boxes, access: access}
}

type BoxInput struct {
	Code        string
	Name        string
	LocationID  int64
	Description *string
	ImageURL    *string
}

// validate runs after the access check so unauthorized callers learn
// nothing about the expected shape.
func (in BoxInput) validate() error {
	fields := map[string]string{}
	if in.Code == "" {
		fields["code"] = "code is required"
	}
	if in.Name == "" {
		fields["name"] = "name is required"
	}
	if len(fields) > 0 {
		return apperr.Invalid(fields)
	}
	return nil
}

func (s *BoxService) Create(ctx context.Context, userID string, in BoxInput) (*models.Box, error) {
	if err := s.access.Require(ctx, userID, in.LocationID, models.AccessEdit); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	box := &models.Box{
		ID:          uuid.New(),
		Code:        in.Code,
		Name:        in.Name,
		Description: in.Description,
		ImageURL:    in.ImageURL,
		LocationID:  in.LocationID,
	}
	created, err := s.boxes.Create(ctx, box)
	if err != nil {
		return nil, fmt.Errorf("create box: %w", err)
	}
	return created, nil
}

func (s *BoxService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Box, error) {
	box, err := s.boxes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.Require(ctx, userID, box.LocationID, models.AccessView); err != nil {
		return nil, err
	}
	// Reads bump the label's last-scanned marker; failure is non-fatal.
	_ = s.boxes.TouchLastAccessed(ctx, id)
	return box, nil
}

func (s *BoxService) ListByLocation(ctx context.Context, userID string, locationID int64) ([]models.Box, error) {
	if err := s.access.Require(ctx, userID, locationID, models.AccessView); err != nil {
		return nil, err
	}
	return s.boxes.ListByLocation(ctx, locationID)
}

// Update is full-replace on mutable fields. Moving a box between
// locations requires Edit on both sides.
func (s *BoxService) Update(ctx context.Context, userID string, id uuid.UUID, in BoxInput) (*models.Box, error) {
	box, err := s.boxes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.Require(ctx, userID, box.LocationID, models.AccessEdit); err != nil {
		return nil, err
	}
	if in.LocationID != box.LocationID {
		if err := s.access.Require(ctx, userID, in.LocationID, models.AccessEdit); err != nil {
			return nil, err
		}
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	box.Code = in.Code
	box.Name = in.Name
	box.Description = in.Description
	box.ImageURL = in.ImageURL
	box.LocationID = in.LocationID

	updated, err := s.boxes.Update(ctx, box)
	if err != nil {
		return nil, fmt.Errorf("update box: %w", err)
	}
	return updated, nil
}

func (s *BoxService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	box, err := s.boxes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.access.Require(ctx, userID, box.LocationID, models.AccessEdit); err != nil {
		return err
	}
	return s.boxes.Delete(ctx, id)
}
