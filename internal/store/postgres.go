package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkowalczyk/dermascan/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Scans ---

func (s *PostgresStore) CreateScan(ctx context.Context, scan *models.Scan) error {
	if len(scan.Outcomes) == 0 {
		return fmt.Errorf("scan must have at least one model outcome")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin scan transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO scans (consensus_class, consensus_risk, consensus_confidence, original_image_path)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		scan.ConsensusClass, scan.ConsensusRisk, scan.ConsensusConfidence, scan.OriginalImagePath,
	).Scan(&scan.ID, &scan.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}

	for i := range scan.Outcomes {
		o := &scan.Outcomes[i]
		topK, err := json.Marshal(o.TopK)
		if err != nil {
			return fmt.Errorf("marshal top-k for model %s: %w", o.ModelID, err)
		}
		top := o.Top()
		err = tx.QueryRow(ctx,
			`INSERT INTO scan_model_results (scan_id, model_id, model_label, class_key, confidence, risk_tier, top_k, heatmap_path)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id`,
			scan.ID, o.ModelID, o.ModelLabel, top.ClassKey, top.Confidence, top.RiskTier, topK, o.HeatmapPath,
		).Scan(&o.ID)
		if err != nil {
			return fmt.Errorf("insert model result %s: %w", o.ModelID, err)
		}
		o.ScanID = scan.ID
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit scan transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetScan(ctx context.Context, id int64) (*models.Scan, error) {
	var scan models.Scan
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at, consensus_class, consensus_risk, consensus_confidence, original_image_path
		 FROM scans WHERE id = $1`, id,
	).Scan(&scan.ID, &scan.CreatedAt, &scan.ConsensusClass, &scan.ConsensusRisk,
		&scan.ConsensusConfidence, &scan.OriginalImagePath)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scan: %w", err)
	}

	outcomes, err := s.scanOutcomes(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	scan.Outcomes = outcomes[id]
	return &scan, nil
}

func (s *PostgresStore) ListScans(ctx context.Context, page, limit int) ([]*models.Scan, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scans`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scans: %w", err)
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at, consensus_class, consensus_risk, consensus_confidence, original_image_path
		 FROM scans ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []*models.Scan
	var ids []int64
	for rows.Next() {
		var scan models.Scan
		if err := rows.Scan(&scan.ID, &scan.CreatedAt, &scan.ConsensusClass, &scan.ConsensusRisk,
			&scan.ConsensusConfidence, &scan.OriginalImagePath); err != nil {
			return nil, 0, fmt.Errorf("scan scan row: %w", err)
		}
		scans = append(scans, &scan)
		ids = append(ids, scan.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(ids) > 0 {
		outcomes, err := s.scanOutcomes(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		for _, scan := range scans {
			scan.Outcomes = outcomes[scan.ID]
		}
	}
	return scans, total, nil
}

// scanOutcomes loads the child model results for a set of scan ids, keyed
// by scan id and ordered by insertion (model execution) order.
func (s *PostgresStore) scanOutcomes(ctx context.Context, ids []int64) (map[int64][]models.ModelOutcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, scan_id, model_id, model_label, top_k, heatmap_path
		 FROM scan_model_results WHERE scan_id = ANY($1) ORDER BY id ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("get model results: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]models.ModelOutcome, len(ids))
	for rows.Next() {
		var o models.ModelOutcome
		var topK []byte
		if err := rows.Scan(&o.ID, &o.ScanID, &o.ModelID, &o.ModelLabel, &topK, &o.HeatmapPath); err != nil {
			return nil, fmt.Errorf("scan model result row: %w", err)
		}
		if err := json.Unmarshal(topK, &o.TopK); err != nil {
			return nil, fmt.Errorf("unmarshal top-k for model %s: %w", o.ModelID, err)
		}
		out[o.ScanID] = append(out[o.ScanID], o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteScan(ctx context.Context, id int64) error {
	// Child rows go with the parent via ON DELETE CASCADE.
	tag, err := s.pool.Exec(ctx, `DELETE FROM scans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete scan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Patients ---

func (s *PostgresStore) CreatePatient(ctx context.Context, p *models.Patient) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO patients (name, notes) VALUES ($1, $2)
		 RETURNING id, created_at, updated_at`,
		p.Name, p.Notes,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

const patientColumns = `p.id, p.name, p.notes, p.created_at, p.updated_at,
	(SELECT COUNT(*) FROM body_markers m WHERE m.patient_id = p.id) AS marker_count`

func (s *PostgresStore) GetPatient(ctx context.Context, id int64) (*models.Patient, error) {
	var p models.Patient
	err := s.pool.QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patients p WHERE p.id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Notes, &p.CreatedAt, &p.UpdatedAt, &p.MarkerCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListPatients(ctx context.Context) ([]*models.Patient, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+patientColumns+` FROM patients p ORDER BY p.name ASC, p.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var patients []*models.Patient
	for rows.Next() {
		var p models.Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.Notes, &p.CreatedAt, &p.UpdatedAt, &p.MarkerCount); err != nil {
			return nil, fmt.Errorf("scan patient row: %w", err)
		}
		patients = append(patients, &p)
	}
	return patients, rows.Err()
}

func (s *PostgresStore) UpdatePatient(ctx context.Context, id int64, upd PatientUpdate) (*models.Patient, error) {
	query := `UPDATE patients SET updated_at = now()`
	args := []any{id}
	argIdx := 2

	if upd.Name != nil {
		query += fmt.Sprintf(", name = $%d", argIdx)
		args = append(args, *upd.Name)
		argIdx++
	}
	if upd.Notes != nil {
		query += fmt.Sprintf(", notes = $%d", argIdx)
		args = append(args, *upd.Notes)
		argIdx++
	}
	query += " WHERE id = $1"

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.GetPatient(ctx, id)
}

func (s *PostgresStore) DeletePatient(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Body markers ---

func (s *PostgresStore) CreateMarker(ctx context.Context, m *models.BodyMarker) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO body_markers (patient_id, x, y, view, label, notes, scan_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		m.PatientID, m.X, m.Y, m.View, m.Label, m.Notes, m.ScanID,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create marker: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMarker(ctx context.Context, id int64) (*models.BodyMarker, error) {
	var m models.BodyMarker
	err := s.pool.QueryRow(ctx,
		`SELECT id, patient_id, x, y, view, label, notes, scan_id, created_at, updated_at
		 FROM body_markers WHERE id = $1`, id,
	).Scan(&m.ID, &m.PatientID, &m.X, &m.Y, &m.View, &m.Label, &m.Notes, &m.ScanID,
		&m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get marker: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) ListMarkers(ctx context.Context, patientID int64) ([]*models.BodyMarker, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, patient_id, x, y, view, label, notes, scan_id, created_at, updated_at
		 FROM body_markers WHERE patient_id = $1 ORDER BY created_at DESC, id DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	defer rows.Close()

	var markers []*models.BodyMarker
	for rows.Next() {
		var m models.BodyMarker
		if err := rows.Scan(&m.ID, &m.PatientID, &m.X, &m.Y, &m.View, &m.Label, &m.Notes,
			&m.ScanID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan marker row: %w", err)
		}
		markers = append(markers, &m)
	}
	return markers, rows.Err()
}

func (s *PostgresStore) UpdateMarker(ctx context.Context, id int64, upd MarkerUpdate) (*models.BodyMarker, error) {
	query := `UPDATE body_markers SET updated_at = now()`
	args := []any{id}
	argIdx := 2

	set := func(col string, val any) {
		query += fmt.Sprintf(", %s = $%d", col, argIdx)
		args = append(args, val)
		argIdx++
	}
	if upd.X != nil {
		set("x", *upd.X)
	}
	if upd.Y != nil {
		set("y", *upd.Y)
	}
	if upd.View != nil {
		set("view", *upd.View)
	}
	if upd.Label != nil {
		set("label", *upd.Label)
	}
	if upd.Notes != nil {
		set("notes", *upd.Notes)
	}
	if upd.ScanID != nil {
		set("scan_id", *upd.ScanID)
	}
	query += " WHERE id = $1"

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update marker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.GetMarker(ctx, id)
}

func (s *PostgresStore) DeleteMarker(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM body_markers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
