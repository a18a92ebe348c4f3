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

type ImageRepository struct {
	pool *pgxpool.Pool
}

func NewImageRepository(pool *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

const imageColumns = `id, user_id, hashed_user_id, file_name, content_type, storage_path,
	size_in_bytes, is_encrypted, encryption_kid, iv, auth_tag, uploaded_at`

func scanImage(row pgx.Row) (*models.ImageMetadata, error) {
	var m models.ImageMetadata
	err := row.Scan(
		&m.ID, &m.UserID, &m.HashedUserID, &m.FileName, &m.ContentType, &m.StoragePath,
		&m.SizeInBytes, &m.IsEncrypted, &m.EncryptionKid, &m.IV, &m.AuthTag, &m.UploadedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *ImageRepository) Insert(ctx context.Context, m *models.ImageMetadata) (*models.ImageMetadata, error) {
	created, err := scanImage(r.pool.QueryRow(ctx,
		`INSERT INTO image_metadata
		   (id, user_id, hashed_user_id, file_name, content_type, storage_path,
		    size_in_bytes, is_encrypted, encryption_kid, iv, auth_tag)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+imageColumns,
		m.ID, m.UserID, m.HashedUserID, m.FileName, m.ContentType, m.StoragePath,
		m.SizeInBytes, m.IsEncrypted, m.EncryptionKid, m.IV, m.AuthTag,
	))
	if err != nil {
		return nil, fmt.Errorf("insert image metadata: %w", err)
	}
	return created, nil
}

func (r *ImageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImageMetadata, error) {
	m, err := scanImage(r.pool.QueryRow(ctx,
		`SELECT `+imageColumns+` FROM image_metadata WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("image")
		}
		return nil, fmt.Errorf("get image metadata: %w", err)
	}
	return m, nil
}

func (r *ImageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM image_metadata WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("image")
	}
	return nil
}

// HasReferencingGrantAbove reports whether the user holds a grant above
// View on any location reachable through a box or item that references
// the image.
func (r *ImageRepository) HasReferencingGrantAbove(ctx context.Context, imageID uuid.UUID, userID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM user_locations ul
		   WHERE ul.user_id = $2
		     AND ul.access_level IN ('edit', 'owner')
		     AND ul.location_id IN (
		       SELECT b.location_id FROM boxes b WHERE b.image_metadata_id = $1
		       UNION
		       SELECT b.location_id FROM boxes b
		       JOIN items i ON i.box_id = b.id
		       WHERE i.image_metadata_id = $1
		     )
		 )`, imageID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check referencing grants: %w", err)
	}
	return ok, nil
}

// ListEncryptedByKid returns the next batch of images still encrypted
// with the given key, keyset-paginated on id so callers can walk past
// images that failed to migrate. Ids are UUIDv7, so id order is upload
// order. Images already migrated to another kid fall out of the filter.
func (r *ImageRepository) ListEncryptedByKid(ctx context.Context, kid int32, afterID uuid.UUID, limit int) ([]models.ImageMetadata, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+imageColumns+` FROM image_metadata
		 WHERE is_encrypted AND encryption_kid = $1 AND id > $2
		 ORDER BY id
		 LIMIT $3`, kid, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list images by kid: %w", err)
	}
	defer rows.Close()

	var images []models.ImageMetadata
	for rows.Next() {
		m, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image metadata: %w", err)
		}
		images = append(images, *m)
	}
	return images, rows.Err()
}

// UpdateEncryption rewrites the envelope columns after a re-encrypt.
func (r *ImageRepository) UpdateEncryption(ctx context.Context, id uuid.UUID, kid int32, iv, authTag []byte) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE image_metadata SET encryption_kid = $1, iv = $2, auth_tag = $3
		 WHERE id = $4`, kid, iv, authTag, id)
	if err != nil {
		return fmt.Errorf("update image encryption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("image")
	}
	return nil
}
