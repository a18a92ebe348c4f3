package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/imagecrypt"
	"github.com/storagelabels/backend/internal/models"
)

type KeyStore interface {
	Create(ctx context.Context) (*models.EncryptionKey, error)
	GetByKid(ctx context.Context, kid int32) (*models.EncryptionKey, error)
	GetActive(ctx context.Context) (*models.EncryptionKey, error)
	Activate(ctx context.Context, kid int32) (*models.EncryptionKey, error)
	Retire(ctx context.Context, kid int32) error
	CreateRotation(ctx context.Context, id uuid.UUID, fromKid, toKid int32) (*models.Rotation, error)
	GetRotation(ctx context.Context, id uuid.UUID) (*models.Rotation, error)
	AddRotationProgress(ctx context.Context, id uuid.UUID, processed, failed int) error
	FinishRotation(ctx context.Context, id uuid.UUID, status models.RotationStatus) error
	ReopenRotation(ctx context.Context, id uuid.UUID) (*models.Rotation, error)
}

type RotationImageStore interface {
	ListEncryptedByKid(ctx context.Context, kid int32, afterID uuid.UUID, limit int) ([]models.ImageMetadata, error)
	UpdateEncryption(ctx context.Context, id uuid.UUID, kid int32, iv, authTag []byte) error
}

type RotationBlobStore interface {
	Read(relPath string) ([]byte, error)
	Overwrite(relPath string, data []byte) error
}

// RotationEnqueuer hands a rotation off to the background worker.
type RotationEnqueuer interface {
	EnqueueKeyRotation(rotationID uuid.UUID) error
}

type KeyService struct {
	keys      KeyStore
	images    RotationImageStore
	blobs     RotationBlobStore
	cipher    *imagecrypt.Cipher
	enqueue   RotationEnqueuer
	batchSize int
	logger    *slog.Logger
}

func NewKeyService(
	keys KeyStore,
	images RotationImageStore,
	blobs RotationBlobStore,
	cipher *imagecrypt.Cipher,
	enqueue RotationEnqueuer,
	batchSize int,
	logger *slog.Logger,
) *KeyService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &KeyService{
		keys:      keys,
		images:    images,
		blobs:     blobs,
		cipher:    cipher,
		enqueue:   enqueue,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (s *KeyService) CreateKey(ctx context.Context) (*models.EncryptionKey, error) {
	if !s.cipher.Enabled() {
		return nil, apperr.New(apperr.KindCritical, "image master key is not configured")
	}
	return s.keys.Create(ctx)
}

func (s *KeyService) ActivateKey(ctx context.Context, kid int32) (*models.EncryptionKey, error) {
	if !s.cipher.Enabled() {
		return nil, apperr.New(apperr.KindCritical, "image master key is not configured")
	}
	return s.keys.Activate(ctx, kid)
}

func (s *KeyService) GetRotation(ctx context.Context, id uuid.UUID) (*models.Rotation, error) {
	return s.keys.GetRotation(ctx, id)
}

// StartRotation mints a fresh key, activates it, and queues the batch
// job that migrates images off the previously active key.
func (s *KeyService) StartRotation(ctx context.Context) (*models.Rotation, error) {
	if !s.cipher.Enabled() {
		return nil, apperr.New(apperr.KindCritical, "image master key is not configured")
	}

	from, err := s.keys.GetActive(ctx)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.New(apperr.KindConflict, "no active key to rotate from")
		}
		return nil, err
	}

	created, err := s.keys.Create(ctx)
	if err != nil {
		return nil, err
	}
	to, err := s.keys.Activate(ctx, created.Kid)
	if err != nil {
		return nil, err
	}

	rotation, err := s.keys.CreateRotation(ctx, uuid.New(), from.Kid, to.Kid)
	if err != nil {
		return nil, err
	}

	if err := s.enqueue.EnqueueKeyRotation(rotation.ID); err != nil {
		return nil, fmt.Errorf("enqueue rotation: %w", err)
	}
	return rotation, nil
}

// RetryRotation reopens a failed rotation and queues it again, so the
// stragglers of a partial run get another pass once the underlying
// cause is fixed.
func (s *KeyService) RetryRotation(ctx context.Context, id uuid.UUID) (*models.Rotation, error) {
	if !s.cipher.Enabled() {
		return nil, apperr.New(apperr.KindCritical, "image master key is not configured")
	}

	rotation, err := s.keys.ReopenRotation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.enqueue.EnqueueKeyRotation(rotation.ID); err != nil {
		return nil, fmt.Errorf("enqueue rotation retry: %w", err)
	}
	return rotation, nil
}

// RunRotation re-encrypts images in fixed-size batches, walking the
// source kid's images in id order with a keyset cursor. Failed images
// stay on the old kid but the cursor moves past them, so one bad batch
// cannot shadow the images behind it. Already migrated images fall out
// of the kid filter, which is what makes a retry a pure delta.
func (s *KeyService) RunRotation(ctx context.Context, rotationID uuid.UUID) error {
	rotation, err := s.keys.GetRotation(ctx, rotationID)
	if err != nil {
		return err
	}
	if rotation.Status != models.RotationRunning {
		s.logger.Info("rotation already finished", "rotation_id", rotationID, "status", rotation.Status)
		return nil
	}

	totalFailed := 0
	var cursor uuid.UUID

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := s.images.ListEncryptedByKid(ctx, rotation.FromKid, cursor, s.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		processed, failed := 0, 0
		for _, img := range batch {
			if err := s.reencrypt(ctx, &img, rotation.ToKid); err != nil {
				s.logger.Warn("image re-encrypt failed", "image_id", img.ID, "error", err)
				failed++
				continue
			}
			processed++
		}
		cursor = batch[len(batch)-1].ID

		if err := s.keys.AddRotationProgress(ctx, rotationID, processed, failed); err != nil {
			return err
		}
		totalFailed += failed
	}

	status := models.RotationCompleted
	if totalFailed > 0 {
		status = models.RotationFailed
	}
	if err := s.keys.FinishRotation(ctx, rotationID, status); err != nil {
		return err
	}

	if status == models.RotationCompleted {
		if err := s.keys.Retire(ctx, rotation.FromKid); err != nil {
			s.logger.Warn("retiring source key failed", "kid", rotation.FromKid, "error", err)
		}
	}
	return nil
}

func (s *KeyService) reencrypt(ctx context.Context, img *models.ImageMetadata, toKid int32) error {
	if img.EncryptionKid == nil {
		return fmt.Errorf("image %s marked encrypted without a kid", img.ID)
	}

	data, err := s.blobs.Read(img.StoragePath)
	if err != nil {
		return err
	}
	plain, err := s.cipher.Open(*img.EncryptionKid, data, img.IV, img.AuthTag)
	if err != nil {
		return err
	}
	sealed, iv, tag, err := s.cipher.Seal(toKid, plain)
	if err != nil {
		return err
	}
	if err := s.blobs.Overwrite(img.StoragePath, sealed); err != nil {
		return err
	}
	// The metadata switch to the target kid is what marks the image as
	// migrated for the idempotency filter.
	return s.images.UpdateEncryption(ctx, img.ID, toKid, iv, tag)
}
