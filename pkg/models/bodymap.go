package models

import "time"

// BodyMarker pins a lesion location on the front or back body silhouette.
// X and Y are normalized to [0,1] relative to the silhouette viewport.
// ScanID optionally links the marker to a persisted scan; deleting the scan
// clears the link without removing the marker.
type BodyMarker struct {
	ID        int64     `db:"id"         json:"id"`
	PatientID int64     `db:"patient_id" json:"patient_id"`
	X         float64   `db:"x"          json:"x"`
	Y         float64   `db:"y"          json:"y"`
	View      string    `db:"view"       json:"view"`
	Label     string    `db:"label"      json:"label"`
	Notes     *string   `db:"notes"      json:"notes,omitempty"`
	ScanID    *int64    `db:"scan_id"    json:"scan_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Body map views.
const (
	ViewFront = "front"
	ViewBack  = "back"
)

// ValidView reports whether v names a supported body map view.
func ValidView(v string) bool {
	return v == ViewFront || v == ViewBack
}
