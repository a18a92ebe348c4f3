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

type KeyRepository struct {
	pool *pgxpool.Pool
}

func NewKeyRepository(pool *pgxpool.Pool) *KeyRepository {
	return &KeyRepository{pool: pool}
}

const keyColumns = `kid, version, status, created_at, activated_at, retired_at`

func scanKey(row pgx.Row) (*models.EncryptionKey, error) {
	var k models.EncryptionKey
	err := row.Scan(&k.Kid, &k.Version, &k.Status, &k.CreatedAt, &k.ActivatedAt, &k.RetiredAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *KeyRepository) Create(ctx context.Context) (*models.EncryptionKey, error) {
	k, err := scanKey(r.pool.QueryRow(ctx,
		`INSERT INTO encryption_keys (version, status)
		 VALUES ((SELECT coalesce(max(version), 0) + 1 FROM encryption_keys), $1)
		 RETURNING `+keyColumns, models.KeyStatusCreated))
	if err != nil {
		return nil, fmt.Errorf("insert key: %w", err)
	}
	return k, nil
}

func (r *KeyRepository) GetByKid(ctx context.Context, kid int32) (*models.EncryptionKey, error) {
	k, err := scanKey(r.pool.QueryRow(ctx,
		`SELECT `+keyColumns+` FROM encryption_keys WHERE kid = $1`, kid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("encryption key")
		}
		return nil, fmt.Errorf("get key: %w", err)
	}
	return k, nil
}

// GetActive returns the single active key, or NotFound when no key is
// active (the upload path treats that as "store plaintext").
func (r *KeyRepository) GetActive(ctx context.Context) (*models.EncryptionKey, error) {
	k, err := scanKey(r.pool.QueryRow(ctx,
		`SELECT `+keyColumns+` FROM encryption_keys WHERE status = $1`, models.KeyStatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("active encryption key")
		}
		return nil, fmt.Errorf("get active key: %w", err)
	}
	return k, nil
}

// Activate promotes the key and demotes the previous active key in the
// same transaction, preserving the at-most-one-active invariant.
func (r *KeyRepository) Activate(ctx context.Context, kid int32) (*models.EncryptionKey, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE encryption_keys SET status = $1 WHERE status = $2 AND kid <> $3`,
		models.KeyStatusDeprecated, models.KeyStatusActive, kid)
	if err != nil {
		return nil, fmt.Errorf("deprecate active key: %w", err)
	}

	k, err := scanKey(tx.QueryRow(ctx,
		`UPDATE encryption_keys SET status = $1, activated_at = now()
		 WHERE kid = $2 AND status <> $3
		 RETURNING `+keyColumns,
		models.KeyStatusActive, kid, models.KeyStatusRetired))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("encryption key")
		}
		return nil, fmt.Errorf("activate key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return k, nil
}

func (r *KeyRepository) Retire(ctx context.Context, kid int32) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE encryption_keys SET status = $1, retired_at = now()
		 WHERE kid = $2 AND status = $3`,
		models.KeyStatusRetired, kid, models.KeyStatusDeprecated)
	if err != nil {
		return fmt.Errorf("retire key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindConflict, "only deprecated keys can be retired")
	}
	return nil
}

const rotationColumns = `id, from_kid, to_kid, processed, failed, status, created_at, updated_at`

func scanRotation(row pgx.Row) (*models.Rotation, error) {
	var rot models.Rotation
	err := row.Scan(&rot.ID, &rot.FromKid, &rot.ToKid, &rot.Processed, &rot.Failed,
		&rot.Status, &rot.CreatedAt, &rot.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rot, nil
}

func (r *KeyRepository) CreateRotation(ctx context.Context, id uuid.UUID, fromKid, toKid int32) (*models.Rotation, error) {
	rot, err := scanRotation(r.pool.QueryRow(ctx,
		`INSERT INTO key_rotations (id, from_kid, to_kid, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+rotationColumns,
		id, fromKid, toKid, models.RotationRunning))
	if err != nil {
		return nil, fmt.Errorf("insert rotation: %w", err)
	}
	return rot, nil
}

func (r *KeyRepository) GetRotation(ctx context.Context, id uuid.UUID) (*models.Rotation, error) {
	rot, err := scanRotation(r.pool.QueryRow(ctx,
		`SELECT `+rotationColumns+` FROM key_rotations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("rotation")
		}
		return nil, fmt.Errorf("get rotation: %w", err)
	}
	return rot, nil
}

func (r *KeyRepository) AddRotationProgress(ctx context.Context, id uuid.UUID, processed, failed int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE key_rotations
		 SET processed = processed + $1, failed = failed + $2, updated_at = now()
		 WHERE id = $3`, processed, failed, id)
	if err != nil {
		return fmt.Errorf("update rotation progress: %w", err)
	}
	return nil
}

// ReopenRotation flips a failed rotation back to running so the worker
// can pick it up again. Running or completed rotations stay untouched.
func (r *KeyRepository) ReopenRotation(ctx context.Context, id uuid.UUID) (*models.Rotation, error) {
	rot, err := scanRotation(r.pool.QueryRow(ctx,
		`UPDATE key_rotations SET status = $1, updated_at = now()
		 WHERE id = $2 AND status = $3
		 RETURNING `+rotationColumns,
		models.RotationRunning, id, models.RotationFailed))
	if err == nil {
		return rot, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reopen rotation: %w", err)
	}

	if _, err := r.GetRotation(ctx, id); err != nil {
		return nil, err
	}
	return nil, apperr.New(apperr.KindConflict, "only failed rotations can be retried")
}

func (r *KeyRepository) FinishRotation(ctx context.Context, id uuid.UUID, status models.RotationStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE key_rotations SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("finish rotation: %w", err)
	}
	return nil
}
