package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/models"
)

type BoxRepository struct {
	pool *pgxpool.Pool
}

func NewBoxRepository(pool *pgxpool.Pool) *BoxRepository {
	return &BoxRepository{pool: pool}
}

const boxColumns = `id, code, name, description, image_url, image_metadata_id, location_id, created_at, updated_at, last_accessed`

func scanBox(row pgx.Row) (*models.Box, error) {
	var b models.Box
	err := row.Scan(
		&b.ID, &b.Code, &b.Name, &b.Description, &b.ImageURL,
		&b.ImageMetadataID, &b.LocationID, &b.CreatedAt, &b.UpdatedAt, &b.LastAccessed,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BoxRepository) Create(ctx context.Context, b *models.Box) (*models.Box, error) {
	created, err := scanBox(r.pool.QueryRow(ctx,
		`INSERT INTO boxes (id, code, name, description, image_url, image_metadata_id, location_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+boxColumns,
		b.ID, b.Code, b.Name, b.Description, b.ImageURL, b.ImageMetadataID, b.LocationID,
	))
	if err != nil {
		return nil, fmt.Errorf("insert box: %w", err)
	}
	return created, nil
}

func (r *BoxRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Box, error) {
	b, err := scanBox(r.pool.QueryRow(ctx,
		`SELECT `+boxColumns+` FROM boxes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("box")
		}
		return nil, fmt.Errorf("get box: %w", err)
	}
	return b, nil
}

func (r *BoxRepository) ListByLocation(ctx context.Context, locationID int64) ([]models.Box, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+boxColumns+` FROM boxes WHERE location_id = $1 ORDER BY name, id`, locationID)
	if err != nil {
		return nil, fmt.Errorf("list boxes: %w", err)
	}
	defer rows.Close()

	var boxes []models.Box
	for rows.Next() {
		b, err := scanBox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan box: %w", err)
		}
		boxes = append(boxes, *b)
	}
	return boxes, rows.Err()
}

// Update is full-replace on mutable fields. The RETURNING clause hands
// back the canonical persisted row rather than the caller's in-memory copy.
func (r *BoxRepository) Update(ctx context.Context, b *models.Box) (*models.Box, error) {
	updated, err := scanBox(r.pool.QueryRow(ctx,
		`UPDATE boxes
		 SET code = $1, name = $2, description = $3, image_url = $4,
		     image_metadata_id = $5, location_id = $6, updated_at = now()
		 WHERE id = $7
		 RETURNING `+boxColumns,
		b.Code, b.Name, b.Description, b.ImageURL, b.ImageMetadataID, b.LocationID, b.ID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("box")
		}
		return nil, fmt.Errorf("update box: %w", err)
	}
	return updated, nil
}

func (r *BoxRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM boxes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete box: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("box")
	}
	return nil
}

func (r *BoxRepository) TouchLastAccessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE boxes SET last_accessed = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch box: %w", err)
	}
	return nil
}

func (r *BoxRepository) CountByImage(ctx context.Context, imageID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM boxes WHERE image_metadata_id = $1`, imageID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count boxes by image: %w", err)
	}
	return n, nil
}

// ClearImageRefs nulls the image columns on every referencing box with a
// single set-based statement; no box rows are loaded into memory.
func (r *BoxRepository) ClearImageRefs(ctx context.Context, imageID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE boxes SET image_url = NULL, image_metadata_id = NULL, updated_at = now()
		 WHERE image_metadata_id = $1`, imageID)
	if err != nil {
		return fmt.Errorf("clear box image refs: %w", err)
	}
	return nil
}
