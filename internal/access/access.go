package access

import (
	"context"
	"fmt"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/models"
)

// GrantSource is the minimal read surface the evaluator needs. The
// postgres repository implements it; tests substitute a fake.
type GrantSource interface {
	// Grant returns the stored access level for the pair and whether a
	// grant row exists at all.
	Grant(ctx context.Context, userID string, locationID int64) (models.AccessLevel, bool, error)
	LocationExists(ctx context.Context, locationID int64) (bool, error)
}

// Evaluator resolves a user's access level for a location and gates
// every box/item/image mutation on it.
type Evaluator struct {
	grants GrantSource
}

func NewEvaluator(grants GrantSource) *Evaluator {
	return &Evaluator{grants: grants}
}

// Resolve returns the user's grant for the location, defaulting to
// AccessNone when no grant row exists.
func (e *Evaluator) Resolve(ctx context.Context, userID string, locationID int64) (models.AccessLevel, error) {
	level, ok, err := e.grants.Grant(ctx, userID, locationID)
	if err != nil {
		return models.AccessNone, fmt.Errorf("resolve grant: %w", err)
	}
	if !ok {
		return models.AccessNone, nil
	}
	return level, nil
}

// Require enforces a minimum level. A missing location is NotFound; an
// existing location with an insufficient grant is Forbidden, so callers
// never leak existence through the error kind.
func (e *Evaluator) Require(ctx context.Context, userID string, locationID int64, min models.AccessLevel) error {
	exists, err := e.grants.LocationExists(ctx, locationID)
	if err != nil {
		return fmt.Errorf("check location: %w", err)
	}
	if !exists {
		return apperr.NotFound("location")
	}
	level, err := e.Resolve(ctx, userID, locationID)
	if err != nil {
		return err
	}
	if !level.Meets(min) {
		return apperr.Forbidden("insufficient access to location")
	}
	return nil
}

func (e *Evaluator) RequireView(ctx context.Context, userID string, locationID int64) error {
	return e.Require(ctx, userID, locationID, models.AccessView)
}

func (e *Evaluator) RequireEdit(ctx context.Context, userID string, locationID int64) error {
	return e.Require(ctx, userID, locationID, models.AccessEdit)
}

func (e *Evaluator) RequireOwner(ctx context.Context, userID string, locationID int64) error {
	return e.Require(ctx, userID, locationID, models.AccessOwner)
}
