package models

import (
	"time"

	"github.com/google/uuid"
)

// Box is a physical storage box. Code is the external label scanned from
// the printed QR sticker and is used for exact-match lookup.
type Box struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	Code            string     `json:"code" db:"code"`
	Name            string     `json:"name" db:"name"`
	Description     *string    `json:"description,omitempty" db:"description"`
	ImageURL        *string    `json:"image_url,omitempty" db:"image_url"`
	ImageMetadataID *uuid.UUID `json:"image_metadata_id,omitempty" db:"image_metadata_id"`
	LocationID      int64      `json:"location_id" db:"location_id"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	LastAccessed    time.Time  `json:"last_accessed" db:"last_accessed"`
}

// Item belongs to exactly one box and inherits the box's location for
// access checks.
type Item struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	BoxID           uuid.UUID  `json:"box_id" db:"box_id"`
	Name            string     `json:"name" db:"name"`
	Description     *string    `json:"description,omitempty" db:"description"`
	ImageURL        *string    `json:"image_url,omitempty" db:"image_url"`
	ImageMetadataID *uuid.UUID `json:"image_metadata_id,omitempty" db:"image_metadata_id"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}
