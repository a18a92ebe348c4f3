package models

import "time"

type Location struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CommonLocation is global autocomplete reference data; it carries no
// access control.
type CommonLocation struct {
	ID   int32  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
