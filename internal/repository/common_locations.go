package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/models"
)

// CommonLocationRepository holds the global autocomplete list. No access
// control applies to this reference data.
type CommonLocationRepository struct {
	pool *pgxpool.Pool
}

func NewCommonLocationRepository(pool *pgxpool.Pool) *CommonLocationRepository {
	return &CommonLocationRepository{pool: pool}
}

func (r *CommonLocationRepository) Create(ctx context.Context, name string) (*models.CommonLocation, error) {
	var cl models.CommonLocation
	err := r.pool.QueryRow(ctx,
		`INSERT INTO common_locations (name) VALUES ($1) RETURNING id, name`, name,
	).Scan(&cl.ID, &cl.Name)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperr.New(apperr.KindConflict, "common location already exists")
		}
		return nil, fmt.Errorf("insert common location: %w", err)
	}
	return &cl, nil
}

func (r *CommonLocationRepository) List(ctx context.Context) ([]models.CommonLocation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name FROM common_locations ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list common locations: %w", err)
	}
	defer rows.Close()

	var out []models.CommonLocation
	for rows.Next() {
		var cl models.CommonLocation
		if err := rows.Scan(&cl.ID, &cl.Name); err != nil {
			return nil, fmt.Errorf("scan common location: %w", err)
		}
		out = append(out, cl)
	}
	return out, rows.Err()
}

func (r *CommonLocationRepository) Delete(ctx context.Context, id int32) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM common_locations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete common location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("common location")
	}
	return nil
}
