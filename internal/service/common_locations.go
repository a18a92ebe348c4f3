package service

import (
	"context"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/models"
)

type CommonLocationStore interface {
	Create(ctx context.Context, name string) (*models.CommonLocation, error)
	List(ctx context.Context) ([]models.CommonLocation, error)
	Delete(ctx context.Context, id int32) error
}

// CommonLocationService manages the global autocomplete list. The list
// is shared reference data and carries no access control.
type CommonLocationService struct {
	store CommonLocationStore
}

func NewCommonLocationService(store CommonLocationStore) *CommonLocationService {
	return &CommonLocationService{store: store}
}

func (s *CommonLocationService) Create(ctx context.Context, name string) (*models.CommonLocation, error) {
	if name == "" {
		return nil, apperr.Invalid(map[string]string{"name": "name is required"})
	}
	return s.store.Create(ctx, name)
}

func (s *CommonLocationService) List(ctx context.Context) ([]models.CommonLocation, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.CommonLocation{}
	}
	return list, nil
}

func (s *CommonLocationService) Delete(ctx context.Context, id int32) error {
	return s.store.Delete(ctx, id)
}
