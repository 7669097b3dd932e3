package models

import "time"

// Patient is a tracked person whose lesions are pinned on the body map.
type Patient struct {
	ID          int64     `db:"id"           json:"id"`
	Name        string    `db:"name"         json:"name"`
	Notes       *string   `db:"notes"        json:"notes,omitempty"`
	MarkerCount int       `db:"marker_count" json:"marker_count"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}
