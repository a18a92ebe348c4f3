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

type ItemRepository struct {
	pool *pgxpool.Pool
}

func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{pool: pool}
}

const itemColumns = `id, box_id, name, description, image_url, image_metadata_id, created_at, updated_at`

func scanItem(row pgx.Row) (*models.Item, error) {
	var it models.Item
	err := row.Scan(
		&it.ID, &it.BoxID, &it.Name, &it.Description,
		&it.ImageURL, &it.ImageMetadataID, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *ItemRepository) Create(ctx context.Context, it *models.Item) (*models.Item, error) {
	created, err := scanItem(r.pool.QueryRow(ctx,
		`INSERT INTO items (id, box_id, name, description, image_url, image_metadata_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+itemColumns,
		it.ID, it.BoxID, it.Name, it.Description, it.ImageURL, it.ImageMetadataID,
	))
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return created, nil
}

func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	it, err := scanItem(r.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("item")
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

func (r *ItemRepository) ListByBox(ctx context.Context, boxID uuid.UUID) ([]models.Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items WHERE box_id = $1 ORDER BY name, id`, boxID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (r *ItemRepository) Update(ctx context.Context, it *models.Item) (*models.Item, error) {
	updated, err := scanItem(r.pool.QueryRow(ctx,
		`UPDATE items
		 SET name = $1, description = $2, image_url = $3, image_metadata_id = $4,
		     box_id = $5, updated_at = now()
		 WHERE id = $6
		 RETURNING `+itemColumns,
		it.Name, it.Description, it.ImageURL, it.ImageMetadataID, it.BoxID, it.ID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("item")
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	return updated, nil
}

func (r *ItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("item")
	}
	return nil
}

func (r *ItemRepository) CountByImage(ctx context.Context, imageID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM items WHERE image_metadata_id = $1`, imageID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count items by image: %w", err)
	}
	return n, nil
}

// ClearImageRefs mirrors BoxRepository.ClearImageRefs for items.
func (r *ItemRepository) ClearImageRefs(ctx context.Context, imageID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE items SET image_url = NULL, image_metadata_id = NULL, updated_at = now()
		 WHERE image_metadata_id = $1`, imageID)
	if err != nil {
		return fmt.Errorf("clear item image refs: %w", err)
	}
	return nil
}
