package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storagelabels/backend/internal/apperr"
)

type SearchRepository struct {
	pool *pgxpool.Pool
}

func NewSearchRepository(pool *pgxpool.Pool) *SearchRepository {
	return &SearchRepository{pool: pool}
}

// SearchResult is one ranked hit from either the box or the item pass.
type SearchResult struct {
	Kind        string     `json:"kind"` // "box" or "item"
	ID          uuid.UUID  `json:"id"`
	BoxID       uuid.UUID  `json:"box_id"`
	LocationID  int64      `json:"location_id"`
	Code        *string    `json:"code,omitempty"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	Rank        float32    `json:"rank"`
}

type SearchParams struct {
	UserID     string
	Query      string
	LocationID *int64
	BoxID      *uuid.UUID
	Limit      int
	Offset     int
}

// exactCodeBoost dominates every full-text rank so a scanned code always
// sorts first.
const exactCodeBoost = 100.0

const searchSQL = `
WITH accessible AS (
    SELECT location_id FROM user_locations
    WHERE user_id = $1 AND access_level <> 'none'
),
hits AS (
    SELECT 'box' AS kind, b.id, b.id AS box_id, b.location_id,
           b.code, b.name, b.description,
           ts_rank(to_tsvector('english', b.code || ' ' || b.name || ' ' || coalesce(b.description, '')),
                   websearch_to_tsquery('english', $2))
             + CASE WHEN lower(b.code) = lower($2) THEN $3::float4 ELSE 0 END
             + CASE WHEN b.name ILIKE '%' || $2 || '%' THEN 0.01 ELSE 0 END AS rank
    FROM boxes b
    WHERE b.location_id IN (SELECT location_id FROM accessible)
      AND ($4::bigint IS NULL OR b.location_id = $4)
      AND ($5::uuid IS NULL OR b.id = $5)
      AND (to_tsvector('english', b.code || ' ' || b.name || ' ' || coalesce(b.description, ''))
             @@ websearch_to_tsquery('english', $2)
           OR b.code ILIKE '%' || $2 || '%'
           OR b.name ILIKE '%' || $2 || '%'
           OR b.description ILIKE '%' || $2 || '%')
    UNION ALL
    SELECT 'item' AS kind, i.id, b.id AS box_id, b.location_id,
           NULL AS code, i.name, i.description,
           ts_rank(to_tsvector('english', i.name || ' ' || coalesce(i.description, '')),
                   websearch_to_tsquery('english', $2))
             + CASE WHEN i.name ILIKE '%' || $2 || '%' THEN 0.01 ELSE 0 END AS rank
    FROM items i
    JOIN boxes b ON b.id = i.box_id
    WHERE b.location_id IN (SELECT location_id FROM accessible)
      AND ($4::bigint IS NULL OR b.location_id = $4)
      AND ($5::uuid IS NULL OR b.id = $5)
      AND (to_tsvector('english', i.name || ' ' || coalesce(i.description, ''))
             @@ websearch_to_tsquery('english', $2)
           OR i.name ILIKE '%' || $2 || '%'
           OR i.description ILIKE '%' || $2 || '%')
)
SELECT kind, id, box_id, location_id, code, name, description, rank,
       count(*) OVER() AS total
FROM hits
ORDER BY rank DESC, id ASC
LIMIT $6 OFFSET $7`

// Search runs both matching passes scoped to the user's accessible
// locations. Ordering is rank descending with id ascending as the
// tie-break, so pagination is deterministic.
func (r *SearchRepository) Search(ctx context.Context, p SearchParams) ([]SearchResult, int, error) {
	rows, err := r.pool.Query(ctx, searchSQL,
		p.UserID, p.Query, exactCodeBoost, p.LocationID, p.BoxID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	var total int
	for rows.Next() {
		var res SearchResult
		if err := rows.Scan(&res.Kind, &res.ID, &res.BoxID, &res.LocationID,
			&res.Code, &res.Name, &res.Description, &res.Rank, &total); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}

// FindByQrCode is the exact-match sibling of Search: box code first,
// then exact case-insensitive item name, first match only.
func (r *SearchRepository) FindByQrCode(ctx context.Context, userID, code string) (*SearchResult, error) {
	var res SearchResult
	err := r.pool.QueryRow(ctx, `
		SELECT 'box', b.id, b.id, b.location_id, b.code, b.name, b.description
		FROM boxes b
		JOIN user_locations ul ON ul.location_id = b.location_id
		WHERE ul.user_id = $1 AND ul.access_level <> 'none' AND b.code = $2
		ORDER BY b.id
		LIMIT 1`, userID, code,
	).Scan(&res.Kind, &res.ID, &res.BoxID, &res.LocationID, &res.Code, &res.Name, &res.Description)
	if err == nil {
		res.Rank = exactCodeBoost
		return &res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("qr box lookup: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT 'item', i.id, b.id, b.location_id, NULL, i.name, i.description
		FROM items i
		JOIN boxes b ON b.id = i.box_id
		JOIN user_locations ul ON ul.location_id = b.location_id
		WHERE ul.user_id = $1 AND ul.access_level <> 'none' AND lower(i.name) = lower($2)
		ORDER BY i.id
		LIMIT 1`, userID, code,
	).Scan(&res.Kind, &res.ID, &res.BoxID, &res.LocationID, &res.Code, &res.Name, &res.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "no box or item matches the code")
		}
		return nil, fmt.Errorf("qr item lookup: %w", err)
	}
	res.Rank = exactCodeBoost
	return &res, nil
}
