package model

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/mkowalczyk/dermascan/internal/imaging"
)

// Model is one loaded ONNX classifier. The session and its preallocated
// tensors are reused across requests, so every forward pass is serialized
// behind mu; the loaded-model set itself is read-only after startup.
type Model struct {
	id    string
	label string
	arch  Architecture

	mu       sync.Mutex
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	logits   *ort.Tensor[float32]
	features *ort.Tensor[float32]

	target      OutputInfo
	headWeights [][]float32 // [class][channel], for class-activation maps
	inputSide   int
	numClasses  int
}

// Output is one forward pass result. Slices are copies and safe to retain.
type Output struct {
	Logits       []float32
	Features     []float32
	FeatureShape []int64
}

func (m *Model) ID() string         { return m.id }
func (m *Model) Label() string      { return m.label }
func (m *Model) Arch() Architecture { return m.arch }

// HeadRow returns the classifier-head weight row for a class index, one
// weight per explanation-target channel. Used to weight activations into a
// class-activation map.
func (m *Model) HeadRow(class int) []float32 {
	if class < 0 || class >= len(m.headWeights) {
		return nil
	}
	return m.headWeights[class]
}

// Forward runs one inference pass over the shared tensor. Inference-only:
// the exported graphs contain no dropout and no gradient state, so the
// result is deterministic for a given input.
func (m *Model) Forward(tensor imaging.Tensor) (*Output, error) {
	if tensor.Side != m.inputSide {
		return nil, fmt.Errorf("model %s expects %dpx input, got %dpx", m.id, m.inputSide, tensor.Side)
	}
	want := 3 * m.inputSide * m.inputSide
	if len(tensor.Data) != want {
		return nil, fmt.Errorf("model %s expects %d tensor values, got %d", m.id, want, len(tensor.Data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.input.GetData(), tensor.Data)
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("model %s inference: %w", m.id, err)
	}

	out := &Output{
		Logits:       make([]float32, m.numClasses),
		Features:     make([]float32, len(m.features.GetData())),
		FeatureShape: m.target.Shape,
	}
	copy(out.Logits, m.logits.GetData())
	copy(out.Features, m.features.GetData())
	return out, nil
}

// Close releases the session and its tensors.
func (m *Model) Close() {
	if m.input != nil {
		m.input.Destroy()
	}
	if m.logits != nil {
		m.logits.Destroy()
	}
	if m.features != nil {
		m.features.Destroy()
	}
	if m.session != nil {
		m.session.Destroy()
	}
}
