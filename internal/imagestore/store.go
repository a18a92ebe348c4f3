package imagestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store writes image blobs under {root}/{sanitizedUserID}/{fileID}.{ext}.
// File ids are UUIDv7 so directory listings stay roughly chronological.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

// SanitizeUserID replaces filesystem-invalid runes in the user id so it
// can serve as a directory name. The pipe in Auth0-style ids
// ("auth0|12345") is valid on POSIX filesystems and kept as is.
func SanitizeUserID(userID string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', 0:
			return '_'
		}
		return r
	}, userID)
}

// NewFileID generates a time-sortable file identifier.
func NewFileID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4.
		return uuid.New()
	}
	return id
}

// Save writes the blob and returns its path relative to the store root.
func (s *Store) Save(userID string, fileID uuid.UUID, ext string, data []byte) (string, error) {
	dir := filepath.Join(s.root, SanitizeUserID(userID))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create user dir: %w", err)
	}

	rel := filepath.Join(SanitizeUserID(userID), fileID.String()+"."+strings.TrimPrefix(ext, "."))
	if err := os.WriteFile(filepath.Join(s.root, rel), data, 0o640); err != nil {
		return "", fmt.Errorf("write image file: %w", err)
	}
	return rel, nil
}

// Overwrite replaces an existing blob in place, used when rotation
// re-encrypts a file under a new key.
func (s *Store) Overwrite(relPath string, data []byte) error {
	if err := os.WriteFile(filepath.Join(s.root, relPath), data, 0o640); err != nil {
		return fmt.Errorf("overwrite image file: %w", err)
	}
	return nil
}

func (s *Store) Read(relPath string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, relPath))
	if err != nil {
		return nil, fmt.Errorf("read image file: %w", err)
	}
	return data, nil
}

func (s *Store) Exists(relPath string) bool {
	_, err := os.Stat(filepath.Join(s.root, relPath))
	return err == nil
}

func (s *Store) Delete(relPath string) error {
	if err := os.Remove(filepath.Join(s.root, relPath)); err != nil {
		return fmt.Errorf("remove image file: %w", err)
	}
	return nil
}
