package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/models"
)

type ItemStore interface {
	Create(ctx context.Context, it *models.Item) (*models.Item, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error)
	ListByBox(ctx context.Context, boxID uuid.UUID) ([]models.Item, error)
	Update(ctx context.Context, it *models.Item) (*models.Item, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ItemService resolves each item through its box to the owning location
// for access checks; items carry no location of their own.
type ItemService struct {
	items  ItemStore
	boxes  BoxStore
	access AccessEvaluator
}

func NewItemService(items ItemStore, boxes BoxStore, access AccessEvaluator) *ItemService {
	return &ItemService{items: items, boxes: boxes, access: access}
}

type ItemInput struct {
	BoxID       uuid.UUID
	Name        string
	Description *string
	ImageURL    *string
}

func (in ItemInput) validate() error {
	fields := map[string]string{}
	if in.Name == "" {
		fields["name"] = "name is required"
	}
	if in.BoxID == uuid.Nil {
		fields["box_id"] = "box_id is required"
	}
	if len(fields) > 0 {
		return apperr.Invalid(fields)
	}
	return nil
}

// requireBoxAccess maps the item's box to its location and enforces min.
func (s *ItemService) requireBoxAccess(ctx context.Context, userID string, boxID uuid.UUID, min models.AccessLevel) (*models.Box, error) {
	box, err := s.boxes.GetByID(ctx, boxID)
	if err != nil {
		return nil, err
	}
	if err := s.access.Require(ctx, userID, box.LocationID, min); err != nil {
		return nil, err
	}
	return box, nil
}

func (s *ItemService) Create(ctx context.Context, userID string, in ItemInput) (*models.Item, error) {
	if in.BoxID == uuid.Nil {
		return nil, in.validate()
	}
	if _, err := s.requireBoxAccess(ctx, userID, in.BoxID, models.AccessEdit); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	item := &models.Item{
		ID:          uuid.New(),
		BoxID:       in.BoxID,
		Name:        in.Name,
		Description: in.Description,
		ImageURL:    in.ImageURL,
	}
	created, err := s.items.Create(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	return created, nil
}

func (s *ItemService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireBoxAccess(ctx, userID, item.BoxID, models.AccessView); err != nil {
		return nil, err
	}
	return item, nil
}

// ListByBox returns the box's items in a stable order, access-filtered
// before anything is materialized to the caller.
func (s *ItemService) ListByBox(ctx context.Context, userID string, boxID uuid.UUID) ([]models.Item, error) {
	if _, err := s.requireBoxAccess(ctx, userID, boxID, models.AccessView); err != nil {
		return nil, err
	}
	return s.items.ListByBox(ctx, boxID)
}

func (s *ItemService) Update(ctx context.Context, userID string, id uuid.UUID, in ItemInput) (*models.Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireBoxAccess(ctx, userID, item.BoxID, models.AccessEdit); err != nil {
		return nil, err
	}
	if in.BoxID != item.BoxID {
		if _, err := s.requireBoxAccess(ctx, userID, in.BoxID, models.AccessEdit); err != nil {
			return nil, err
		}
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	item.BoxID = in.BoxID
	item.Name = in.Name
	item.Description = in.Description
	item.ImageURL = in.ImageURL

	updated, err := s.items.Update(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return updated, nil
}

// Delete reports a missing item as NotFound and an insufficient grant as
// Forbidden, the same policy every other entity follows.
func (s *ItemService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.requireBoxAccess(ctx, userID, item.BoxID, models.AccessEdit); err != nil {
		return err
	}
	return s.items.Delete(ctx, id)
}
