package models

import "time"

// ModelOutcome is the result of running one model on one image: the ranked
// top-k predictions (index 0 = top-1) plus the rendered heatmap's storage
// path. Created once per (scan, model) pair and never mutated.
type ModelOutcome struct {
	ID          int64             `db:"id"           json:"-"`
	ScanID      int64             `db:"scan_id"      json:"-"`
	ModelID     string            `db:"model_id"     json:"model_id"`
	ModelLabel  string            `db:"model_label"  json:"model_label"`
	TopK        []ClassPrediction `db:"top_k"        json:"top_k"`
	HeatmapPath string            `db:"heatmap_path" json:"-"`
}

// Top returns the top-1 prediction. Callers must not invoke it on an
// outcome with an empty TopK; the inference engine always produces k=3.
func (o *ModelOutcome) Top() ClassPrediction {
	return o.TopK[0]
}

// Scan is one completed analysis: the consensus diagnosis derived from all
// successful model outcomes, the stored original image, and the per-model
// children. A scan with zero outcomes is never persisted.
type Scan struct {
	ID                  int64          `db:"id"                   json:"id"`
	CreatedAt           time.Time      `db:"created_at"           json:"created_at"`
	ConsensusClass      string         `db:"consensus_class"      json:"consensus_class"`
	ConsensusRisk       int            `db:"consensus_risk"       json:"consensus_risk"`
	ConsensusConfidence float64        `db:"consensus_confidence" json:"consensus_confidence"`
	OriginalImagePath   string         `db:"original_image_path"  json:"-"`
	Outcomes            []ModelOutcome `db:"-"                    json:"model_results"`
}
