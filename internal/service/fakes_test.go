package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/storagelabels/backend/internal/apperr"
	"github.com/storagelabels/backend/internal/models"
)

// In-memory doubles for the store interfaces. They keep the same error
// kinds the postgres repositories produce.

type fakeGrantSource struct {
	locations map[int64]bool
	grants    map[string]models.AccessLevel
}

func grantKey(userID string, locationID int64) string {
	return fmt.Sprintf("%s:%d", userID, locationID)
}

func (f *fakeGrantSource) Grant(_ context.Context, userID string, locationID int64) (models.AccessLevel, bool, error) {
	level, ok := f.grants[grantKey(userID, locationID)]
	return level, ok, nil
}

func (f *fakeGrantSource) LocationExists(_ context.Context, locationID int64) (bool, error) {
	return f.locations[locationID], nil
}

type fakeBoxStore struct {
	boxes map[uuid.UUID]*models.Box
}

func newFakeBoxStore() *fakeBoxStore {
	return &fakeBoxStore{boxes: make(map[uuid.UUID]*models.Box)}
}

func (f *fakeBoxStore) Create(_ context.Context, b *models.Box) (*models.Box, error) {
	cp := *b
	f.boxes[b.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeBoxStore) GetByID(_ context.Context, id uuid.UUID) (*models.Box, error) {
	b, ok := f.boxes[id]
	if !ok {
		return nil, apperr.NotFound("box")
	}
	out := *b
	return &out, nil
}

func (f *fakeBoxStore) ListByLocation(_ context.Context, locationID int64) ([]models.Box, error) {
	var out []models.Box
	for _, b := range f.boxes {
		if b.LocationID == locationID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeBoxStore) Update(_ context.Context, b *models.Box) (*models.Box, error) {
	if _, ok := f.boxes[b.ID]; !ok {
		return nil, apperr.NotFound("box")
	}
	cp := *b
	f.boxes[b.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeBoxStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.boxes[id]; !ok {
		return apperr.NotFound("box")
	}
	delete(f.boxes, id)
	return nil
}

func (f *fakeBoxStore) TouchLastAccessed(_ context.Context, _ uuid.UUID) error { return nil }

func (f *fakeBoxStore) CountByImage(_ context.Context, imageID uuid.UUID) (int, error) {
	n := 0
	for _, b := range f.boxes {
		if b.ImageMetadataID != nil && *b.ImageMetadataID == imageID {
			n++
		}
	}
	return n, nil
}

func (f *fakeBoxStore) ClearImageRefs(_ context.Context, imageID uuid.UUID) error {
	for _, b := range f.boxes {
		if b.ImageMetadataID != nil && *b.ImageMetadataID == imageID {
			b.ImageMetadataID = nil
			b.ImageURL = nil
		}
	}
	return nil
}

type fakeItemStore struct {
	items map[uuid.UUID]*models.Item
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{items: make(map[uuid.UUID]*models.Item)}
}

func (f *fakeItemStore) Create(_ context.Context, it *models.Item) (*models.Item, error) {
	cp := *it
	f.items[it.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeItemStore) GetByID(_ context.Context, id uuid.UUID) (*models.Item, error) {
	it, ok := f.items[id]
	if !ok {
		return nil, apperr.NotFound("item")
	}
	out := *it
	return &out, nil
}

func (f *fakeItemStore) ListByBox(_ context.Context, boxID uuid.UUID) ([]models.Item, error) {
	var out []models.Item
	for _, it := range f.items {
		if it.BoxID == boxID {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeItemStore) Update(_ context.Context, it *models.Item) (*models.Item, error) {
	if _, ok := f.items[it.ID]; !ok {
		return nil, apperr.NotFound("item")
	}
	cp := *it
	f.items[it.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeItemStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.items[id]; !ok {
		return apperr.NotFound("item")
	}
	delete(f.items, id)
	return nil
}

func (f *fakeItemStore) CountByImage(_ context.Context, imageID uuid.UUID) (int, error) {
	n := 0
	for _, it := range f.items {
		if it.ImageMetadataID != nil && *it.ImageMetadataID == imageID {
			n++
		}
	}
	return n, nil
}

func (f *fakeItemStore) ClearImageRefs(_ context.Context, imageID uuid.UUID) error {
	for _, it := range f.items {
		if it.ImageMetadataID != nil && *it.ImageMetadataID == imageID {
			it.ImageMetadataID = nil
			it.ImageURL = nil
		}
	}
	return nil
}

type fakeImageMetaStore struct {
	images    map[uuid.UUID]*models.ImageMetadata
	refGrants map[string]bool // imageID:userID -> has grant above View
}

func newFakeImageMetaStore() *fakeImageMetaStore {
	return &fakeImageMetaStore{
		images:    make(map[uuid.UUID]*models.ImageMetadata),
		refGrants: make(map[string]bool),
	}
}

func (f *fakeImageMetaStore) Insert(_ context.Context, m *models.ImageMetadata) (*models.ImageMetadata, error) {
	cp := *m
	f.images[m.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeImageMetaStore) GetByID(_ context.Context, id uuid.UUID) (*models.ImageMetadata, error) {
	m, ok := f.images[id]
	if !ok {
		return nil, apperr.NotFound("image")
	}
	out := *m
	return &out, nil
}

func (f *fakeImageMetaStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.images[id]; !ok {
		return apperr.NotFound("image")
	}
	delete(f.images, id)
	return nil
}

func (f *fakeImageMetaStore) HasReferencingGrantAbove(_ context.Context, imageID uuid.UUID, userID string) (bool, error) {
	return f.refGrants[imageID.String()+":"+userID], nil
}

func (f *fakeImageMetaStore) ListEncryptedByKid(_ context.Context, kid int32, afterID uuid.UUID, limit int) ([]models.ImageMetadata, error) {
	var out []models.ImageMetadata
	for _, m := range f.images {
		if m.IsEncrypted && m.EncryptionKid != nil && *m.EncryptionKid == kid &&
			m.ID.String() > afterID.String() {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeImageMetaStore) UpdateEncryption(_ context.Context, id uuid.UUID, kid int32, iv, authTag []byte) error {
	m, ok := f.images[id]
	if !ok {
		return apperr.NotFound("image")
	}
	m.EncryptionKid = &kid
	m.IV = iv
	m.AuthTag = authTag
	return nil
}

// fakeBlobStore keeps blobs in a map keyed by their relative path.
type fakeBlobStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{files: make(map[string][]byte)}
}

func (f *fakeBlobStore) Save(userID string, fileID uuid.UUID, ext string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := userID + "/" + fileID.String() + "." + ext
	f.files[path] = append([]byte(nil), data...)
	return path, nil
}

func (f *fakeBlobStore) Read(relPath string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[relPath]
	if !ok {
		return nil, fmt.Errorf("read image file: no such file %s", relPath)
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeBlobStore) Overwrite(relPath string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[relPath]; !ok {
		return fmt.Errorf("overwrite image file: no such file %s", relPath)
	}
	f.files[relPath] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBlobStore) Exists(relPath string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[relPath]
	return ok
}

func (f *fakeBlobStore) Delete(relPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[relPath]; !ok {
		return fmt.Errorf("remove image file: no such file %s", relPath)
	}
	delete(f.files, relPath)
	return nil
}

type fakeKeyStore struct {
	keys      map[int32]*models.EncryptionKey
	rotations map[uuid.UUID]*models.Rotation
	nextKid   int32
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{
		keys:      make(map[int32]*models.EncryptionKey),
		rotations: make(map[uuid.UUID]*models.Rotation),
		nextKid:   1,
	}
}

func (f *fakeKeyStore) Create(_ context.Context) (*models.EncryptionKey, error) {
	k := &models.EncryptionKey{Kid: f.nextKid, Version: f.nextKid, Status: models.KeyStatusCreated}
	f.keys[k.Kid] = k
	f.nextKid++
	out := *k
	return &out, nil
}

func (f *fakeKeyStore) GetByKid(_ context.Context, kid int32) (*models.EncryptionKey, error) {
	k, ok := f.keys[kid]
	if !ok {
		return nil, apperr.NotFound("encryption key")
	}
	out := *k
	return &out, nil
}

func (f *fakeKeyStore) GetActive(_ context.Context) (*models.EncryptionKey, error) {
	for _, k := range f.keys {
		if k.Status == models.KeyStatusActive {
			out := *k
			return &out, nil
		}
	}
	return nil, apperr.NotFound("active encryption key")
}

func (f *fakeKeyStore) Activate(_ context.Context, kid int32) (*models.EncryptionKey, error) {
	k, ok := f.keys[kid]
	if !ok {
		return nil, apperr.NotFound("encryption key")
	}
	for _, other := range f.keys {
		if other.Status == models.KeyStatusActive && other.Kid != kid {
			other.Status = models.KeyStatusDeprecated
		}
	}
	k.Status = models.KeyStatusActive
	out := *k
	return &out, nil
}

func (f *fakeKeyStore) Retire(_ context.Context, kid int32) error {
	k, ok := f.keys[kid]
	if !ok || k.Status != models.KeyStatusDeprecated {
		return apperr.New(apperr.KindConflict, "only deprecated keys can be retired")
	}
	k.Status = models.KeyStatusRetired
	return nil
}

func (f *fakeKeyStore) CreateRotation(_ context.Context, id uuid.UUID, fromKid, toKid int32) (*models.Rotation, error) {
	r := &models.Rotation{ID: id, FromKid: fromKid, ToKid: toKid, Status: models.RotationRunning}
	f.rotations[id] = r
	out := *r
	return &out, nil
}

func (f *fakeKeyStore) GetRotation(_ context.Context, id uuid.UUID) (*models.Rotation, error) {
	r, ok := f.rotations[id]
	if !ok {
		return nil, apperr.NotFound("rotation")
	}
	out := *r
	return &out, nil
}

func (f *fakeKeyStore) AddRotationProgress(_ context.Context, id uuid.UUID, processed, failed int) error {
	r, ok := f.rotations[id]
	if !ok {
		return apperr.NotFound("rotation")
	}
	r.Processed += processed
	r.Failed += failed
	return nil
}

func (f *fakeKeyStore) FinishRotation(_ context.Context, id uuid.UUID, status models.RotationStatus) error {
	r, ok := f.rotations[id]
	if !ok {
		return apperr.NotFound("rotation")
	}
	r.Status = status
	return nil
}

func (f *fakeKeyStore) ReopenRotation(_ context.Context, id uuid.UUID) (*models.Rotation, error) {
	r, ok := f.rotations[id]
	if !ok {
		return nil, apperr.NotFound("rotation")
	}
	if r.Status != models.RotationFailed {
		return nil, apperr.New(apperr.KindConflict, "only failed rotations can be retried")
	}
	r.Status = models.RotationRunning
	out := *r
	return &out, nil
}

type fakeEnqueuer struct {
	enqueued []uuid.UUID
}

func (f *fakeEnqueuer) EnqueueKeyRotation(rotationID uuid.UUID) error {
	f.enqueued = append(f.enqueued, rotationID)
	return nil
}

type fakeUserStore struct {
	users map[string]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*models.User)}
}

func (f *fakeUserStore) Create(_ context.Context, u *models.User) (*models.User, error) {
	for _, existing := range f.users {
		if existing.EmailAddress == u.EmailAddress {
			return nil, apperr.New(apperr.KindConflict, "email address already registered")
		}
	}
	cp := *u
	f.users[u.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	out := *u
	return &out, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.EmailAddress == email {
			out := *u
			return &out, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (f *fakeUserStore) Update(_ context.Context, u *models.User) (*models.User, error) {
	if _, ok := f.users[u.ID]; !ok {
		return nil, apperr.NotFound("user")
	}
	cp := *u
	f.users[u.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeUserStore) UpdatePreferences(_ context.Context, id string, prefs json.RawMessage) error {
	u, ok := f.users[id]
	if !ok {
		return apperr.NotFound("user")
	}
	u.Preferences = append(json.RawMessage(nil), prefs...)
	return nil
}
