package models

import (
	"time"

	"github.com/google/uuid"
)

type ImageMetadata struct {
	ID            uuid.UUID `json:"id" db:"id"`
	UserID        string    `json:"user_id" db:"user_id"`
	HashedUserID  string    `json:"hashed_user_id" db:"hashed_user_id"`
	FileName      string    `json:"file_name" db:"file_name"`
	ContentType   string    `json:"content_type" db:"content_type"`
	StoragePath   string    `json:"storage_path" db:"storage_path"`
	SizeInBytes   int64     `json:"size_in_bytes" db:"size_in_bytes"`
	IsEncrypted   bool      `json:"is_encrypted" db:"is_encrypted"`
	EncryptionKid *int32    `json:"encryption_kid,omitempty" db:"encryption_kid"`
	IV            []byte    `json:"-" db:"iv"`
	AuthTag       []byte    `json:"-" db:"auth_tag"`
	UploadedAt    time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// KeyStatus is the lifecycle state of an encryption key. At most one key
// is Active at a time.
type KeyStatus string

const (
	KeyStatusCreated    KeyStatus = "created"
	KeyStatusActive     KeyStatus = "active"
	KeyStatusDeprecated KeyStatus = "deprecated"
	KeyStatusRetired    KeyStatus = "retired"
)

type EncryptionKey struct {
	Kid         int32      `json:"kid" db:"kid"`
	Version     int32      `json:"version" db:"version"`
	Status      KeyStatus  `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty" db:"activated_at"`
	RetiredAt   *time.Time `json:"retired_at,omitempty" db:"retired_at"`
}

type RotationStatus string

const (
	RotationRunning   RotationStatus = "running"
	RotationCompleted RotationStatus = "completed"
	RotationFailed    RotationStatus = "failed"
)

// Rotation tracks a key-rotation run. Retrying a rotation is idempotent:
// images already carrying the target kid are filtered out of each batch.
type Rotation struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	FromKid   int32          `json:"from_kid" db:"from_kid"`
	ToKid     int32          `json:"to_kid" db:"to_kid"`
	Processed int            `json:"processed" db:"processed"`
	Failed    int            `json:"failed" db:"failed"`
	Status    RotationStatus `json:"status" db:"status"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}
