package store

import (
	"context"
	"errors"

	"github.com/mkowalczyk/dermascan/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// CreateScan inserts the parent scan row and its per-model children in
	// one transaction, filling in the generated ids and timestamp. A scan
	// with no outcomes is rejected.
	CreateScan(ctx context.Context, scan *models.Scan) error
	GetScan(ctx context.Context, id int64) (*models.Scan, error)
	ListScans(ctx context.Context, page, limit int) ([]*models.Scan, int, error)
	DeleteScan(ctx context.Context, id int64) error

	CreatePatient(ctx context.Context, p *models.Patient) error
	GetPatient(ctx context.Context, id int64) (*models.Patient, error)
	ListPatients(ctx context.Context) ([]*models.Patient, error)
	UpdatePatient(ctx context.Context, id int64, upd PatientUpdate) (*models.Patient, error)
	DeletePatient(ctx context.Context, id int64) error

	CreateMarker(ctx context.Context, m *models.BodyMarker) error
	GetMarker(ctx context.Context, id int64) (*models.BodyMarker, error)
	ListMarkers(ctx context.Context, patientID int64) ([]*models.BodyMarker, error)
	UpdateMarker(ctx context.Context, id int64, upd MarkerUpdate) (*models.BodyMarker, error)
	DeleteMarker(ctx context.Context, id int64) error
}

// PatientUpdate is a partial patient update; nil fields are left unchanged.
type PatientUpdate struct {
	Name  *string
	Notes *string
}

// MarkerUpdate is a partial marker update; nil fields are left unchanged.
type MarkerUpdate struct {
	X      *float64
	Y      *float64
	View   *string
	Label  *string
	Notes  *string
	ScanID *int64
}
