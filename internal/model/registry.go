package model

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/mkowalczyk/dermascan/internal/catalog"
)

// manifest lists the models to load, in order. The manifest order is the
// model execution order for every request, which also fixes the consensus
// tie-break.
type manifest struct {
	Models []string `json:"models"`
}

// metadata describes one exported model, produced alongside the .onnx file
// by the export tooling.
type metadata struct {
	ID          string       `json:"id"`
	Label       string       `json:"label"`
	Arch        string       `json:"arch"`
	File        string       `json:"file"`
	InputSize   int          `json:"input_size"`
	InputName   string       `json:"input_name"`
	Outputs     []OutputInfo `json:"outputs"`
	Classes     []string     `json:"classes"`
	HeadWeights [][]float32  `json:"head_weights"`
}

// Registry holds the loaded classifier set. Loaded once at startup and
// treated as read-only afterwards; safe for concurrent reads.
type Registry struct {
	models []*Model
}

// Load reads the manifest from dir and loads every listed model. A model
// that fails to load is logged and skipped; the registry may legitimately
// come up partial (the pipeline reports unavailability only at zero).
func Load(dir string) (*Registry, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("read model manifest: %w", err)
	}
	var man manifest
	if err := json.Unmarshal(raw, &man); err != nil {
		return nil, fmt.Errorf("parse model manifest: %w", err)
	}

	reg := &Registry{}
	for _, id := range man.Models {
		m, err := loadModel(dir, id)
		if err != nil {
			slog.Error("model load failed, skipping", "model", id, "error", err)
			continue
		}
		reg.models = append(reg.models, m)
		slog.Info("model loaded", "model", m.id, "arch", m.arch, "label", m.label)
	}
	return reg, nil
}

func loadModel(dir, id string) (*Model, error) {
	raw, err := os.ReadFile(filepath.Join(dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}

	arch, err := ParseArchitecture(meta.Arch)
	if err != nil {
		return nil, err
	}
	if len(meta.Classes) != catalog.NumClasses() {
		return nil, fmt.Errorf("model has %d classes, catalog has %d", len(meta.Classes), catalog.NumClasses())
	}
	for i, key := range meta.Classes {
		want, _ := catalog.ByIndex(i)
		if key != want.Key {
			return nil, fmt.Errorf("class %d is %q, catalog expects %q", i, key, want.Key)
		}
	}
	if meta.InputSize <= 0 {
		return nil, fmt.Errorf("invalid input_size %d", meta.InputSize)
	}

	target, err := arch.LocateTarget(meta.Outputs)
	if err != nil {
		return nil, fmt.Errorf("locate explanation target: %w", err)
	}
	var logitsOut OutputInfo
	for _, out := range meta.Outputs {
		if out.Name == "logits" {
			logitsOut = out
		}
	}
	if logitsOut.Name == "" {
		return nil, fmt.Errorf("graph does not export a logits output")
	}

	inputName := meta.InputName
	if inputName == "" {
		inputName = "input"
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(meta.InputSize), int64(meta.InputSize)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	logits, err := ort.NewEmptyTensor[float32](ort.NewShape(logitsOut.Shape...))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create logits tensor: %w", err)
	}
	features, err := ort.NewEmptyTensor[float32](ort.NewShape(target.Shape...))
	if err != nil {
		input.Destroy()
		logits.Destroy()
		return nil, fmt.Errorf("create feature tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		filepath.Join(dir, meta.File),
		[]string{inputName},
		[]string{logitsOut.Name, target.Name},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{logits, features},
		nil,
	)
	if err != nil {
		input.Destroy()
		logits.Destroy()
		features.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &Model{
		id:          meta.ID,
		label:       meta.Label,
		arch:        arch,
		session:     session,
		input:       input,
		logits:      logits,
		features:    features,
		target:      target,
		headWeights: meta.HeadWeights,
		inputSide:   meta.InputSize,
		numClasses:  len(meta.Classes),
	}, nil
}

// Models returns the loaded models in manifest order.
func (r *Registry) Models() []*Model { return r.models }

// Len reports how many models loaded successfully.
func (r *Registry) Len() int { return len(r.models) }

// Close releases every session and the runtime environment.
func (r *Registry) Close() {
	for _, m := range r.models {
		m.Close()
	}
	ort.DestroyEnvironment()
}
