package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/models"
)

type LocationRepository struct {
	pool *pgxpool.Pool
}

func NewLocationRepository(pool *pgxpool.Pool) *LocationRepository {
	return &LocationRepository{pool: pool}
}

// Create inserts the location and grants the creator Owner in one
// transaction, so a location is never left without an administrator.
func (r *LocationRepository) Create(ctx context.Context, name, ownerID string) (*models.Location, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var loc models.Location
	err = tx.QueryRow(ctx,
		`INSERT INTO locations (name) VALUES ($1)
		 RETURNING id, name, created_at, updated_at`, name,
	).Scan(&loc.ID, &loc.Name, &loc.CreatedAt, &loc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert location: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO user_locations (user_id, location_id, access_level) VALUES ($1, $2, $3)`,
		ownerID, loc.ID, models.AccessOwner.String())
	if err != nil {
		return nil, fmt.Errorf("grant owner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &loc, nil
}

func (r *LocationRepository) GetByID(ctx context.Context, id int64) (*models.Location, error) {
	var loc models.Location
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM locations WHERE id = $1`, id,
	).Scan(&loc.ID, &loc.Name, &loc.CreatedAt, &loc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("location")
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &loc, nil
}

// ListForUser returns every location the user holds any grant on,
// together with the grant level.
func (r *LocationRepository) ListForUser(ctx context.Context, userID string) ([]models.Location, []models.AccessLevel, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT l.id, l.name, l.created_at, l.updated_at, ul.access_level
		 FROM locations l
		 JOIN user_locations ul ON ul.location_id = l.id
		 WHERE ul.user_id = $1
		 ORDER BY l.name, l.id`, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var locs []models.Location
	var levels []models.AccessLevel
	for rows.Next() {
		var loc models.Location
		var level string
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.CreatedAt, &loc.UpdatedAt, &level); err != nil {
			return nil, nil, fmt.Errorf("scan location: %w", err)
		}
		locs = append(locs, loc)
		levels = append(levels, models.ParseAccessLevel(level))
	}
	return locs, levels, rows.Err()
}

func (r *LocationRepository) Update(ctx context.Context, id int64, name string) (*models.Location, error) {
	var loc models.Location
	err := r.pool.QueryRow(ctx,
		`UPDATE locations SET name = $1, updated_at = now() WHERE id = $2
		 RETURNING id, name, created_at, updated_at`, name, id,
	).Scan(&loc.ID, &loc.Name, &loc.CreatedAt, &loc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("location")
		}
		return nil, fmt.Errorf("update location: %w", err)
	}
	return &loc, nil
}

// Delete cascades to user_locations, boxes and items via foreign keys.
func (r *LocationRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("location")
	}
	return nil
}

// Grant implements access.GrantSource.
func (r *LocationRepository) Grant(ctx context.Context, userID string, locationID int64) (models.AccessLevel, bool, error) {
	var level string
	err := r.pool.QueryRow(ctx,
		`SELECT access_level FROM user_locations WHERE user_id = $1 AND location_id = $2`,
		userID, locationID,
	).Scan(&level)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AccessNone, false, nil
		}
		return models.AccessNone, false, fmt.Errorf("get grant: %w", err)
	}
	return models.ParseAccessLevel(level), true, nil
}

// LocationExists implements access.GrantSource.
func (r *LocationRepository) LocationExists(ctx context.Context, locationID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM locations WHERE id = $1)`, locationID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check location exists: %w", err)
	}
	return exists, nil
}

func (r *LocationRepository) ListGrants(ctx context.Context, locationID int64) ([]models.UserLocation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, location_id, access_level FROM user_locations
		 WHERE location_id = $1 ORDER BY user_id`, locationID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []models.UserLocation
	for rows.Next() {
		var g models.UserLocation
		var level string
		if err := rows.Scan(&g.UserID, &g.LocationID, &level); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		g.AccessLevel = models.ParseAccessLevel(level)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// UpsertGrant keeps one row per (user, location) pair.
func (r *LocationRepository) UpsertGrant(ctx context.Context, g models.UserLocation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_locations (user_id, location_id, access_level)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, location_id) DO UPDATE SET access_level = EXCLUDED.access_level`,
		g.UserID, g.LocationID, g.AccessLevel.String())
	if err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}
	return nil
}

func (r *LocationRepository) RemoveGrant(ctx context.Context, userID string, locationID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_locations WHERE user_id = $1 AND location_id = $2`,
		userID, locationID)
	if err != nil {
		return fmt.Errorf("remove grant: %w", err)
	}
	return nil
}
