package models

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string          `json:"id" db:"id"`
	FirstName    string          `json:"first_name" db:"first_name"`
	LastName     string          `json:"last_name" db:"last_name"`
	EmailAddress string          `json:"email_address" db:"email_address"`
	PasswordHash string          `json:"-" db:"password_hash"`
	Preferences  json.RawMessage `json:"preferences" db:"preferences"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Preferences is the typed form of the stored preferences blob.
// Version guards future migrations of the shape.
type Preferences struct {
	Version         int    `json:"version"`
	Theme           string `json:"theme"`
	DefaultLocation *int64 `json:"default_location,omitempty"`
	PageSize        int    `json:"page_size"`
	EncryptUploads  bool   `json:"encrypt_uploads"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		Version:        1,
		Theme:          "system",
		PageSize:       25,
		EncryptUploads: true,
	}
}

// ParsePreferences decodes a stored blob, substituting defaults when the
// blob is empty or malformed rather than surfacing a parse error.
func ParsePreferences(raw json.RawMessage) Preferences {
	if len(raw) == 0 {
		return DefaultPreferences()
	}
	p := DefaultPreferences()
	if err := json.Unmarshal(raw, &p); err != nil {
		return DefaultPreferences()
	}
	if p.Version < 1 {
		p.Version = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPreferences().PageSize
	}
	return p
}
