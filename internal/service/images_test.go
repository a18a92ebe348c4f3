package service

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/imagecrypt"
	"github.com/storagelabels/backend/internal/models"
)

type imageFixture struct {
	svc   *ImageService
	blobs *fakeBlobStore
	meta  *fakeImageMetaStore
	boxes *fakeBoxStore
	items *fakeItemStore
	keys  *fakeKeyStore
}

func newImageFixture(t *testing.T, masterKey string) *imageFixture {
	t.Helper()
	f := &imageFixture{
		blobs: newFakeBlobStore(),
		meta:  newFakeImageMetaStore(),
		boxes: newFakeBoxStore(),
		items: newFakeItemStore(),
		keys:  newFakeKeyStore(),
	}
	f.svc = NewImageService(
		f.blobs, f.meta, f.boxes, f.items, f.keys,
		imagecrypt.New(masterKey), slog.Default(),
	)
	return f
}

func (f *imageFixture) activateKey(t *testing.T) *models.EncryptionKey {
	t.Helper()
	ctx := context.Background()
	k, err := f.keys.Create(ctx)
	require.NoError(t, err)
	k, err = f.keys.Activate(ctx, k.Kid)
	require.NoError(t, err)
	return k
}

func TestUploadRejectsNonJPEG(t *testing.T) {
	f := newImageFixture(t, "master")

	_, err := f.svc.Upload(context.Background(), "u1", "cat.png", "image/png", []byte("png"), true)
	require.Error(t, err)
	assert.Equal(t, apperr.KindFailed, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "image/png")

	// Nothing persisted on rejection: no metadata, no file.
	assert.Empty(t, f.meta.images)
	assert.Empty(t, f.blobs.files)
}

func TestUploadSizeBoundary(t *testing.T) {
	f := newImageFixture(t, "master")
	ctx := context.Background()

	atLimit := bytes.Repeat([]byte{0xAB}, MaxImageBytes)
	meta, err := f.svc.Upload(ctx, "u1", "big.jpg", "image/jpeg", atLimit, false)
	require.NoError(t, err)
	assert.Equal(t, int64(MaxImageBytes), meta.SizeInBytes)

	overLimit := bytes.Repeat([]byte{0xAB}, MaxImageBytes+1)
	_, err = f.svc.Upload(ctx, "u1", "huge.jpg", "image/jpeg", overLimit, false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindFailed, apperr.KindOf(err))
}

func TestUploadFallsBackWithoutActiveKey(t *testing.T) {
	f := newImageFixture(t, "master")

	// No key was ever activated; the upload must still succeed.
	meta, err := f.svc.Upload(context.Background(), "u1", "a.jpg", "image/jpeg", []byte("jpeg"), true)
	require.NoError(t, err)
	assert.False(t, meta.IsEncrypted)
	assert.Nil(t, meta.EncryptionKid)

	stored, err := f.blobs.Read(meta.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), stored)
}

func TestUploadEncryptsWithActiveKey(t *testing.T) {
	f := newImageFixture(t, "master")
	key := f.activateKey(t)
	ctx := context.Background()

	plain := []byte("jpeg body bytes")
	meta, err := f.svc.Upload(ctx, "u1", "a.jpg", "image/jpeg", plain, true)
	require.NoError(t, err)
	assert.True(t, meta.IsEncrypted)
	require.NotNil(t, meta.EncryptionKid)
	assert.Equal(t, key.Kid, *meta.EncryptionKid)
	assert.NotEmpty(t, meta.IV)
	assert.NotEmpty(t, meta.AuthTag)

	// The bytes on disk are ciphertext, not the plaintext.
	stored, err := f.blobs.Read(meta.StoragePath)
	require.NoError(t, err)
	assert.NotEqual(t, plain, stored)

	// Serving decrypts transparently for the uploader.
	got, data, err := f.svc.GetFile(ctx, "u1", meta.HashedUserID, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, plain, data)
	assert.Equal(t, meta.ID, got.ID)
}

func TestGetFileAuthorization(t *testing.T) {
	f := newImageFixture(t, "master")
	ctx := context.Background()

	meta, err := f.svc.Upload(ctx, "u1", "a.jpg", "image/jpeg", []byte("jpeg"), false)
	require.NoError(t, err)

	// Stranger with no referencing grant: Forbidden, not NotFound.
	_, _, err = f.svc.GetFile(ctx, "u2", meta.HashedUserID, meta.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	// A grant above View on a referencing location opens access.
	f.meta.refGrants[meta.ID.String()+":u2"] = true
	_, data, err := f.svc.GetFile(ctx, "u2", meta.HashedUserID, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	// A stale hashed-user segment reads as NotFound.
	_, _, err = f.svc.GetFile(ctx, "u1", "wrong-hash", meta.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetFileMissingBackingFile(t *testing.T) {
	f := newImageFixture(t, "master")
	ctx := context.Background()

	meta, err := f.svc.Upload(ctx, "u1", "a.jpg", "image/jpeg", []byte("jpeg"), false)
	require.NoError(t, err)
	require.NoError(t, f.blobs.Delete(meta.StoragePath))

	// Stale metadata must not be served.
	_, _, err = f.svc.GetFile(ctx, "u1", meta.HashedUserID, meta.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDeleteImageReferenceGuard(t *testing.T) {
	f := newImageFixture(t, "master")
	ctx := context.Background()

	meta, err := f.svc.Upload(ctx, "u1", "a.jpg", "image/jpeg", []byte("jpeg"), false)
	require.NoError(t, err)

	url := "/images/" + meta.HashedUserID + "/" + meta.ID.String()
	otherBoxID := uuid.New()
	f.boxes.boxes[otherBoxID] = &models.Box{ID: otherBoxID, LocationID: 1, ImageMetadataID: &meta.ID, ImageURL: &url}
	boxID := uuid.New()
	f.boxes.boxes[boxID] = &models.Box{ID: boxID, LocationID: 1, ImageMetadataID: &meta.ID, ImageURL: &url}
	itemID := uuid.New()
	f.items.items[itemID] = &models.Item{ID: itemID, BoxID: boxID, ImageMetadataID: &meta.ID, ImageURL: &url}

	// Only the uploader may delete.
	err = f.svc.Delete(ctx, "u2", meta.ID, false)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	// Referenced without force: error names the exact counts.
	err = f.svc.Delete(ctx, "u1", meta.ID, false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindFailed, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "2 boxes")
	assert.Contains(t, err.Error(), "1 items")

	// Force severs every reference, then removes file and metadata.
	require.NoError(t, f.svc.Delete(ctx, "u1", meta.ID, true))
	for _, b := range f.boxes.boxes {
		assert.Nil(t, b.ImageMetadataID)
		assert.Nil(t, b.ImageURL)
	}
	for _, it := range f.items.items {
		assert.Nil(t, it.ImageMetadataID)
		assert.Nil(t, it.ImageURL)
	}
	assert.False(t, f.blobs.Exists(meta.StoragePath))
	assert.Empty(t, f.meta.images)
}

func TestDeleteImageSurvivesFileRemovalFailure(t *testing.T) {
	f := newImageFixture(t, "master")
	ctx := context.Background()

	meta, err := f.svc.Upload(ctx, "u1", "a.jpg", "image/jpeg", []byte("jpeg"), false)
	require.NoError(t, err)
	require.NoError(t, f.blobs.Delete(meta.StoragePath))

	// File already gone: removal fails, metadata delete still proceeds.
	require.NoError(t, f.svc.Delete(ctx, "u1", meta.ID, false))
	assert.Empty(t, f.meta.images)
}
