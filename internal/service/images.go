package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/imagecrypt"
	"github.com/storagelabels/backend/internal/imagestore"
	"github.com/storagelabels/backend/internal/models"
)

// MaxImageBytes is the upload ceiling: exactly 10 MiB is accepted, one
// byte more is rejected.
const MaxImageBytes = 10 << 20

const jpegContentType = "image/jpeg"

type BlobStore interface {
	Save(userID string, fileID uuid.UUID, ext string, data []byte) (string, error)
	Read(relPath string) ([]byte, error)
	Exists(relPath string) bool
	Delete(relPath string) error
}

type ImageMetaStore interface {
	Insert(ctx context.Context, m *models.ImageMetadata) (*models.ImageMetadata, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ImageMetadata, error)
	Delete(ctx context.Context, id uuid.UUID) error
	HasReferencingGrantAbove(ctx context.Context, imageID uuid.UUID, userID string) (bool, error)
}

type ImageRefStore interface {
	CountByImage(ctx context.Context, imageID uuid.UUID) (int, error)
	ClearImageRefs(ctx context.Context, imageID uuid.UUID) error
}

type ActiveKeySource interface {
	GetActive(ctx context.Context) (*models.EncryptionKey, error)
}

type ImageService struct {
	blobs  BlobStore
	meta   ImageMetaStore
	boxes  ImageRefStore
	items  ImageRefStore
	keys   ActiveKeySource
	cipher *imagecrypt.Cipher
	logger *slog.Logger
}

func NewImageService(
	blobs BlobStore,
	meta ImageMetaStore,
	boxes ImageRefStore,
	items ImageRefStore,
	keys ActiveKeySource,
	cipher *imagecrypt.Cipher,
	logger *slog.Logger,
) *ImageService {
	return &ImageService{
		blobs:  blobs,
		meta:   meta,
		boxes:  boxes,
		items:  items,
		keys:   keys,
		cipher: cipher,
		logger: logger,
	}
}

// Upload stores a JPEG for the user, encrypting at rest when a key is
// active. Encryption trouble never fails the upload; it degrades to
// plaintext storage with a logged warning.
func (s *ImageService) Upload(ctx context.Context, userID, fileName, contentType string, data []byte, encrypt bool) (*models.ImageMetadata, error) {
	if contentType != jpegContentType {
		return nil, apperr.Newf(apperr.KindFailed, "unsupported content type %q: only image/jpeg is accepted", contentType)
	}
	if len(data) > MaxImageBytes {
		return nil, apperr.Newf(apperr.KindFailed, "file of %d bytes exceeds the %d byte limit", len(data), MaxImageBytes)
	}

	meta := &models.ImageMetadata{
		ID:           imagestore.NewFileID(),
		UserID:       userID,
		HashedUserID: imagecrypt.HashUserID(userID),
		FileName:     fileName,
		ContentType:  contentType,
		SizeInBytes:  int64(len(data)),
	}

	payload := data
	if encrypt {
		if sealed, kid, iv, tag, ok := s.trySeal(ctx, data); ok {
			payload = sealed
			meta.IsEncrypted = true
			meta.EncryptionKid = &kid
			meta.IV = iv
			meta.AuthTag = tag
		}
	}

	fileID := imagestore.NewFileID()
	path, err := s.blobs.Save(userID, fileID, "jpg", payload)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	meta.StoragePath = path

	// Metadata lands only after the file write succeeded.
	created, err := s.meta.Insert(ctx, meta)
	if err != nil {
		if remErr := s.blobs.Delete(path); remErr != nil {
			s.logger.Warn("orphaned image file after metadata failure", "path", path, "error", remErr)
		}
		return nil, fmt.Errorf("persist image metadata: %w", err)
	}
	return created, nil
}

// trySeal reports ok=false whenever the upload should proceed
// unencrypted: no active key, no master secret, or a sealing failure.
func (s *ImageService) trySeal(ctx context.Context, data []byte) (sealed []byte, kid int32, iv, tag []byte, ok bool) {
	key, err := s.keys.GetActive(ctx)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			s.logger.Warn("no active encryption key, storing image unencrypted")
		} else {
			s.logger.Warn("active key lookup failed, storing image unencrypted", "error", err)
		}
		return nil, 0, nil, nil, false
	}

	ciphertext, iv, tag, err := s.cipher.Seal(key.Kid, data)
	if err != nil {
		s.logger.Warn("image encryption failed, storing unencrypted", "kid", key.Kid, "error", err)
		return nil, 0, nil, nil, false
	}
	return ciphertext, key.Kid, iv, tag, true
}

// GetFile serves the decrypted image bytes. The caller is authorized as
// the uploader, or through a grant above View on a location reachable
// via a referencing box or item. The hashed user id from the URL must
// match the stored one; stale URLs read as NotFound.
func (s *ImageService) GetFile(ctx context.Context, userID, hashedUserID string, imageID uuid.UUID) (*models.ImageMetadata, []byte, error) {
	meta, err := s.meta.GetByID(ctx, imageID)
	if err != nil {
		return nil, nil, err
	}
	if meta.HashedUserID != hashedUserID {
		return nil, nil, apperr.NotFound("image")
	}

	if meta.UserID != userID {
		referenced, err := s.meta.HasReferencingGrantAbove(ctx, imageID, userID)
		if err != nil {
			return nil, nil, err
		}
		if !referenced {
			// The caller already knows the id from a listing, so
			// existence is not hidden here.
			return nil, nil, apperr.Forbidden("not allowed to view this image")
		}
	}

	if meta.ContentType != jpegContentType {
		return nil, nil, apperr.Newf(apperr.KindFailed, "stored content type %q is not servable", meta.ContentType)
	}
	if !s.blobs.Exists(meta.StoragePath) {
		return nil, nil, apperr.NotFound("image file")
	}

	data, err := s.blobs.Read(meta.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("read image: %w", err)
	}

	if meta.IsEncrypted {
		if meta.EncryptionKid == nil {
			return nil, nil, apperr.New(apperr.KindCritical, "encrypted image has no key id")
		}
		plain, err := s.cipher.Open(*meta.EncryptionKid, data, meta.IV, meta.AuthTag)
		if err != nil {
			return nil, nil, fmt.Errorf("decrypt image: %w", err)
		}
		data = plain
	}
	return meta, data, nil
}

// Delete removes an image the caller uploaded. A referenced image is
// only deleted with force, which first severs every box/item reference
// set-based. File removal is best effort; metadata removal is not.
func (s *ImageService) Delete(ctx context.Context, userID string, imageID uuid.UUID, force bool) error {
	meta, err := s.meta.GetByID(ctx, imageID)
	if err != nil {
		return err
	}
	if meta.UserID != userID {
		return apperr.Forbidden("only the uploader may delete an image")
	}

	boxRefs, err := s.boxes.CountByImage(ctx, imageID)
	if err != nil {
		return err
	}
	itemRefs, err := s.items.CountByImage(ctx, imageID)
	if err != nil {
		return err
	}

	if boxRefs+itemRefs > 0 {
		if !force {
			return apperr.Newf(apperr.KindFailed,
				"image is still referenced by %d boxes and %d items", boxRefs, itemRefs)
		}
		if err := s.boxes.ClearImageRefs(ctx, imageID); err != nil {
			return err
		}
		if err := s.items.ClearImageRefs(ctx, imageID); err != nil {
			return err
		}
	}

	if err := s.blobs.Delete(meta.StoragePath); err != nil {
		s.logger.Warn("image file removal failed, continuing", "path", meta.StoragePath, "error", err)
	}
	return s.meta.Delete(ctx, imageID)
}
