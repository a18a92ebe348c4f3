package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/imagecrypt"
	"github.com/storagelabels/backend/internal/models"
)

// flakyBlobStore fails Overwrite once per listed path, then behaves.
type flakyBlobStore struct {
	*fakeBlobStore
	failOnce map[string]bool
}

func (f *flakyBlobStore) Overwrite(relPath string, data []byte) error {
	if f.failOnce[relPath] {
		delete(f.failOnce, relPath)
		return fmt.Errorf("overwrite image file: transient failure on %s", relPath)
	}
	return f.fakeBlobStore.Overwrite(relPath, data)
}

type keyFixture struct {
	svc      *KeyService
	keys     *fakeKeyStore
	meta     *fakeImageMetaStore
	blobs    *flakyBlobStore
	enqueuer *fakeEnqueuer
	cipher   *imagecrypt.Cipher
}

func newKeyFixture(t *testing.T) *keyFixture {
	t.Helper()
	f := &keyFixture{
		keys:     newFakeKeyStore(),
		meta:     newFakeImageMetaStore(),
		blobs:    &flakyBlobStore{fakeBlobStore: newFakeBlobStore(), failOnce: make(map[string]bool)},
		enqueuer: &fakeEnqueuer{},
		cipher:   imagecrypt.New("rotation-master"),
	}
	f.svc = NewKeyService(f.keys, f.meta, f.blobs, f.cipher, f.enqueuer, 2, slog.Default())
	return f
}

// seedEncrypted stores n images sealed under kid.
func (f *keyFixture) seedEncrypted(t *testing.T, kid int32, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		plain := []byte(fmt.Sprintf("image %d", i))
		sealed, iv, tag, err := f.cipher.Seal(kid, plain)
		require.NoError(t, err)

		id := uuid.New()
		path, err := f.blobs.Save("u1", id, "jpg", sealed)
		require.NoError(t, err)

		k := kid
		_, err = f.meta.Insert(context.Background(), &models.ImageMetadata{
			ID:            id,
			UserID:        "u1",
			HashedUserID:  imagecrypt.HashUserID("u1"),
			ContentType:   "image/jpeg",
			StoragePath:   path,
			IsEncrypted:   true,
			EncryptionKid: &k,
			IV:            iv,
			AuthTag:       tag,
		})
		require.NoError(t, err)
	}
}

func TestCreateKeyRequiresMasterSecret(t *testing.T) {
	f := newKeyFixture(t)
	f.cipher = imagecrypt.New("")
	f.svc = NewKeyService(f.keys, f.meta, f.blobs, f.cipher, f.enqueuer, 2, slog.Default())

	_, err := f.svc.CreateKey(context.Background())
	assert.Equal(t, apperr.KindCritical, apperr.KindOf(err))
}

func TestStartRotationWithoutActiveKey(t *testing.T) {
	f := newKeyFixture(t)

	_, err := f.svc.StartRotation(context.Background())
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Empty(t, f.enqueuer.enqueued)
}

func TestStartRotationActivatesNewKey(t *testing.T) {
	f := newKeyFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateKey(ctx)
	require.NoError(t, err)
	_, err = f.svc.ActivateKey(ctx, first.Kid)
	require.NoError(t, err)

	rotation, err := f.svc.StartRotation(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Kid, rotation.FromKid)
	assert.NotEqual(t, rotation.FromKid, rotation.ToKid)
	assert.Equal(t, models.RotationRunning, rotation.Status)
	assert.Equal(t, []uuid.UUID{rotation.ID}, f.enqueuer.enqueued)

	// The new key is active, the old one deprecated.
	active, err := f.keys.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, rotation.ToKid, active.Kid)
	old, err := f.keys.GetByKid(ctx, first.Kid)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusDeprecated, old.Status)
}

func TestRunRotationMigratesAllImages(t *testing.T) {
	f := newKeyFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateKey(ctx)
	require.NoError(t, err)
	_, err = f.svc.ActivateKey(ctx, first.Kid)
	require.NoError(t, err)
	f.seedEncrypted(t, first.Kid, 5)

	rotation, err := f.svc.StartRotation(ctx)
	require.NoError(t, err)
	require.NoError(t, f.svc.RunRotation(ctx, rotation.ID))

	done, err := f.keys.GetRotation(ctx, rotation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RotationCompleted, done.Status)
	assert.Equal(t, 5, done.Processed)
	assert.Equal(t, 0, done.Failed)

	// Every image now decrypts under the target key only.
	for _, m := range f.meta.images {
		require.NotNil(t, m.EncryptionKid)
		assert.Equal(t, rotation.ToKid, *m.EncryptionKid)
		data, err := f.blobs.Read(m.StoragePath)
		require.NoError(t, err)
		_, err = f.cipher.Open(rotation.ToKid, data, m.IV, m.AuthTag)
		assert.NoError(t, err)
	}

	// Source key retired after a clean run.
	old, err := f.keys.GetByKid(ctx, first.Kid)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusRetired, old.Status)
}

func TestRetryRotationMigratesStragglers(t *testing.T) {
	f := newKeyFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateKey(ctx)
	require.NoError(t, err)
	_, err = f.svc.ActivateKey(ctx, first.Kid)
	require.NoError(t, err)
	f.seedEncrypted(t, first.Kid, 4)

	rotation, err := f.svc.StartRotation(ctx)
	require.NoError(t, err)

	// One image hits a transient write failure on the first run.
	for _, m := range f.meta.images {
		f.blobs.failOnce[m.StoragePath] = true
		break
	}

	require.NoError(t, f.svc.RunRotation(ctx, rotation.ID))
	partial, err := f.keys.GetRotation(ctx, rotation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RotationFailed, partial.Status)
	assert.Equal(t, 3, partial.Processed)
	assert.Equal(t, 1, partial.Failed)

	// A finished rotation is not reprocessed by the worker.
	require.NoError(t, f.svc.RunRotation(ctx, rotation.ID))
	unchanged, err := f.keys.GetRotation(ctx, rotation.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, unchanged.Processed)

	// Retry reopens the failed rotation and queues it again.
	reopened, err := f.svc.RetryRotation(ctx, rotation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RotationRunning, reopened.Status)
	assert.Equal(t, []uuid.UUID{rotation.ID, rotation.ID}, f.enqueuer.enqueued)

	require.NoError(t, f.svc.RunRotation(ctx, rotation.ID))
	retried, err := f.keys.GetRotation(ctx, rotation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RotationCompleted, retried.Status)

	// Only the one straggler was processed on retry.
	assert.Equal(t, 4, retried.Processed)
	assert.Equal(t, 1, retried.Failed)
	for _, m := range f.meta.images {
		require.NotNil(t, m.EncryptionKid)
		assert.Equal(t, rotation.ToKid, *m.EncryptionKid)
	}

	// Completed rotations cannot be retried again.
	_, err = f.svc.RetryRotation(ctx, rotation.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestRetryRotationUnknownID(t *testing.T) {
	f := newKeyFixture(t)

	_, err := f.svc.RetryRotation(context.Background(), uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Empty(t, f.enqueuer.enqueued)
}

func TestRunRotationAdvancesPastFailedBatch(t *testing.T) {
	f := newKeyFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateKey(ctx)
	require.NoError(t, err)
	_, err = f.svc.ActivateKey(ctx, first.Kid)
	require.NoError(t, err)
	f.seedEncrypted(t, first.Kid, 3)

	rotation, err := f.svc.StartRotation(ctx)
	require.NoError(t, err)

	// The entire first batch (batchSize 2) fails, leaving an image
	// behind it that must still get its attempt in the same run.
	var sorted []*models.ImageMetadata
	for _, m := range f.meta.images {
		sorted = append(sorted, m)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.String() < sorted[j].ID.String() })
	f.blobs.failOnce[sorted[0].StoragePath] = true
	f.blobs.failOnce[sorted[1].StoragePath] = true

	require.NoError(t, f.svc.RunRotation(ctx, rotation.ID))

	done, err := f.keys.GetRotation(ctx, rotation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RotationFailed, done.Status)
	assert.Equal(t, 1, done.Processed)
	assert.Equal(t, 2, done.Failed)
	require.NotNil(t, sorted[2].EncryptionKid)
	assert.Equal(t, rotation.ToKid, *sorted[2].EncryptionKid)
}
