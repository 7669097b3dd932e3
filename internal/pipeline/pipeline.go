package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkowalczyk/dermascan/internal/cache"
	"github.com/mkowalczyk/dermascan/internal/consensus"
	"github.com/mkowalczyk/dermascan/internal/explain"
	"github.com/mkowalczyk/dermascan/internal/imaging"
	"github.com/mkowalczyk/dermascan/internal/inference"
	"github.com/mkowalczyk/dermascan/internal/model"
	"github.com/mkowalczyk/dermascan/internal/storage"
	"github.com/mkowalczyk/dermascan/internal/store"
	"github.com/mkowalczyk/dermascan/pkg/models"
)

var (
	// ErrNoModelsLoaded means the registry came up empty; nothing can be analyzed.
	ErrNoModelsLoaded = errors.New("no models loaded")
	// ErrAllModelsFailed means every loaded model errored on this image.
	ErrAllModelsFailed = errors.New("all models failed on this image")
)

const (
	scanTTL    = 5 * time.Minute
	historyTTL = 30 * time.Second
)

// Classifier is what the pipeline needs from a loaded model. *model.Model
// implements it; tests substitute fakes.
type Classifier interface {
	ID() string
	Label() string
	Arch() model.Architecture
	HeadRow(class int) []float32
	Forward(tensor imaging.Tensor) (*model.Output, error)
}

// Focuser narrows an image to its lesion region. It must return the input
// unchanged when no region can be isolated.
type Focuser interface {
	Focus(img image.Image) image.Image
}

// Options tune the preprocessing applied to one request. The zero value
// analyzes the upload as-is: no edge cropping, no lesion localization.
type Options struct {
	// CropFactor is the fraction trimmed from each edge before analysis,
	// in [0, 0.5]. Zero disables edge cropping. The transport layer
	// validates the range.
	CropFactor float64
	// AutoFocus enables lesion localization before tensor conversion.
	AutoFocus bool
}

// Service runs the full analysis pipeline: preprocess, run every model,
// explain, vote, persist. Models run sequentially in registry order.
type Service struct {
	classifiers []Classifier
	localizer   Focuser
	store       store.Store
	images      *storage.Images
	cache       cache.Cache
}

// NewService creates a pipeline Service.
func NewService(classifiers []Classifier, localizer Focuser, st store.Store, images *storage.Images, ca cache.Cache) *Service {
	return &Service{
		classifiers: classifiers,
		localizer:   localizer,
		store:       st,
		images:      images,
		cache:       ca,
	}
}

// Analyze processes one uploaded image end to end and returns the persisted
// scan. The normalized tensor is built once and shared by every model, so
// all of them see identical input. A model that fails is skipped; the scan
// is built from the models that succeeded. Nothing is persisted unless at
// least one model succeeds.
func (s *Service) Analyze(ctx context.Context, data []byte, opts Options) (*models.Scan, error) {
	if len(s.classifiers) == 0 {
		return nil, ErrNoModelsLoaded
	}

	img, err := imaging.Decode(data)
	if err != nil {
		return nil, err
	}
	img = imaging.CropEdges(img, opts.CropFactor)
	if opts.AutoFocus && s.localizer != nil {
		img = s.localizer.Focus(img)
	}
	tensor := imaging.ToTensor(img, imaging.DefaultSide)

	fileID := uuid.NewString()
	originalPath, err := s.images.WriteImage(fileID+"_original.png", img)
	if err != nil {
		return nil, fmt.Errorf("storing original image: %w", err)
	}

	var written []string
	cleanup := func() {
		s.images.DeleteImage(originalPath)
		for _, p := range written {
			s.images.DeleteImage(p)
		}
	}

	var outcomes []models.ModelOutcome
	for _, c := range s.classifiers {
		outcome, err := s.runModel(c, tensor, img, fileID)
		if err != nil {
			slog.Warn("model failed, skipping", "model", c.ID(), "error", err)
			continue
		}
		written = append(written, outcome.HeatmapPath)
		outcomes = append(outcomes, *outcome)
	}
	if len(outcomes) == 0 {
		cleanup()
		return nil, ErrAllModelsFailed
	}

	vote, err := consensus.Aggregate(outcomes)
	if err != nil {
		cleanup()
		return nil, err
	}

	scan := &models.Scan{
		ConsensusClass:      vote.ClassKey,
		ConsensusRisk:       vote.Risk,
		ConsensusConfidence: vote.Confidence,
		OriginalImagePath:   originalPath,
		Outcomes:            outcomes,
	}
	if err := s.store.CreateScan(ctx, scan); err != nil {
		cleanup()
		return nil, fmt.Errorf("persisting scan: %w", err)
	}
	return scan, nil
}

// runModel runs one classifier over the shared tensor and renders its
// heatmap. An explanation failure degrades to a plain resized copy of the
// input; only inference or storage failures fail the model.
func (s *Service) runModel(c Classifier, tensor imaging.Tensor, img image.Image, fileID string) (*models.ModelOutcome, error) {
	out, err := c.Forward(tensor)
	if err != nil {
		return nil, err
	}

	preds, ranked, err := inference.Predictions(out.Logits, inference.TopK)
	if err != nil {
		return nil, err
	}

	heat, err := explain.Heatmap(c.Arch(), out, c.HeadRow(ranked[0]), img, tensor.Side)
	if err != nil {
		slog.Warn("heatmap generation failed, using fallback", "model", c.ID(), "error", err)
		heat = explain.Fallback(img, tensor.Side)
	}
	heatPath, err := s.images.WriteImage(fmt.Sprintf("%s_heatmap_%s.png", fileID, c.ID()), heat)
	if err != nil {
		return nil, fmt.Errorf("storing heatmap: %w", err)
	}

	return &models.ModelOutcome{
		ModelID:     c.ID(),
		ModelLabel:  c.Label(),
		TopK:        preds,
		HeatmapPath: heatPath,
	}, nil
}

// scanRecord is the cache envelope for a scan. The storage paths carry
// json:"-" on the API types, so they ride alongside explicitly.
type scanRecord struct {
	Scan         models.Scan `json:"scan"`
	OriginalPath string      `json:"original_path"`
	HeatmapPaths []string    `json:"heatmap_paths"`
}

func toRecord(scan *models.Scan) scanRecord {
	rec := scanRecord{Scan: *scan, OriginalPath: scan.OriginalImagePath}
	for _, o := range scan.Outcomes {
		rec.HeatmapPaths = append(rec.HeatmapPaths, o.HeatmapPath)
	}
	return rec
}

func (r *scanRecord) restore() *models.Scan {
	scan := r.Scan
	scan.OriginalImagePath = r.OriginalPath
	for i := range scan.Outcomes {
		if i < len(r.HeatmapPaths) {
			scan.Outcomes[i].HeatmapPath = r.HeatmapPaths[i]
		}
	}
	return &scan
}

// GetScan returns one scan by id, read through the cache.
func (s *Service) GetScan(ctx context.Context, id int64) (*models.Scan, error) {
	key := cache.ScanKey(id)
	if raw, found, err := s.cache.Get(ctx, key); err == nil && found {
		var rec scanRecord
		if err := json.Unmarshal(raw, &rec); err == nil {
			return rec.restore(), nil
		}
	}

	scan, err := s.store.GetScan(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(toRecord(scan)); err == nil {
		_ = s.cache.Set(ctx, key, raw, scanTTL)
	}
	return scan, nil
}

type historyPage struct {
	Scans []scanRecord `json:"scans"`
	Total int          `json:"total"`
}

// History returns a page of past scans, newest first, read through the
// cache. The listing key has a short TTL, so a fresh scan may lag a page
// load by that much.
func (s *Service) History(ctx context.Context, page, limit int) ([]*models.Scan, int, error) {
	key := cache.HistoryKey(page, limit)
	if raw, found, err := s.cache.Get(ctx, key); err == nil && found {
		var hp historyPage
		if err := json.Unmarshal(raw, &hp); err == nil {
			scans := make([]*models.Scan, len(hp.Scans))
			for i := range hp.Scans {
				scans[i] = hp.Scans[i].restore()
			}
			return scans, hp.Total, nil
		}
	}

	scans, total, err := s.store.ListScans(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	hp := historyPage{Total: total, Scans: make([]scanRecord, len(scans))}
	for i, scan := range scans {
		hp.Scans[i] = toRecord(scan)
	}
	if raw, err := json.Marshal(hp); err == nil {
		_ = s.cache.Set(ctx, key, raw, historyTTL)
	}
	return scans, total, nil
}

// DeleteScan removes a scan, its database rows, and its stored images.
// Image deletion is best effort; a missing file does not fail the delete.
func (s *Service) DeleteScan(ctx context.Context, id int64) error {
	scan, err := s.store.GetScan(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteScan(ctx, id); err != nil {
		return err
	}

	s.images.DeleteImage(scan.OriginalImagePath)
	for _, o := range scan.Outcomes {
		s.images.DeleteImage(o.HeatmapPath)
	}
	_ = s.cache.Delete(ctx, cache.ScanKey(id))
	return nil
}
