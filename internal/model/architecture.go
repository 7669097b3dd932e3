package model

import (
	"fmt"
	"math"
)

// Architecture identifies a supported classifier family. Each family knows
// which exported graph output is its explanation target and how that
// output's activations map onto a 2D spatial grid. Adding a family means
// adding a variant here; nothing else branches on architecture.
type Architecture string

const (
	// ArchResNet50 targets the output of the final residual stage.
	ArchResNet50 Architecture = "resnet50"
	// ArchMobileNet targets the last feature-extraction block before the
	// classifier head.
	ArchMobileNet Architecture = "mobilenet"
	// ArchCustomCNN targets the last convolutional activation found by
	// walking the exported outputs in reverse.
	ArchCustomCNN Architecture = "customcnn"
	// ArchViT targets the normalization layer preceding the final
	// transformer block's attention; its patch tokens reshape to a grid.
	ArchViT Architecture = "vit"
)

// ParseArchitecture validates an architecture tag from model metadata.
func ParseArchitecture(s string) (Architecture, error) {
	switch Architecture(s) {
	case ArchResNet50, ArchMobileNet, ArchCustomCNN, ArchViT:
		return Architecture(s), nil
	}
	return "", fmt.Errorf("unsupported architecture %q", s)
}

// targetOutputNames maps each family to the graph output exported as its
// explanation target. The custom CNN has no fixed name; see LocateTarget.
var targetOutputNames = map[Architecture]string{
	ArchResNet50:  "layer4",
	ArchMobileNet: "features",
	ArchViT:       "pre_attn_norm",
}

// OutputInfo describes one named output of an exported graph.
type OutputInfo struct {
	Name  string  `json:"name"`
	Shape []int64 `json:"shape"`
}

// LocateTarget selects the explanation-target output from the graph's
// declared outputs. Returns an error when no structurally valid target
// exists; the caller degrades to the fallback heatmap.
func (a Architecture) LocateTarget(outputs []OutputInfo) (OutputInfo, error) {
	if a == ArchCustomCNN {
		// No canonical name: take the last spatial (NCHW) activation,
		// walking in reverse export order.
		for i := len(outputs) - 1; i >= 0; i-- {
			if len(outputs[i].Shape) == 4 && outputs[i].Name != "logits" {
				return outputs[i], nil
			}
		}
		return OutputInfo{}, fmt.Errorf("no convolutional activation output in graph")
	}

	want := targetOutputNames[a]
	for _, out := range outputs {
		if out.Name == want {
			return out, nil
		}
	}
	return OutputInfo{}, fmt.Errorf("explanation target %q not exported by graph", want)
}

// Activations is an explanation target reshaped into channel-major spatial
// form: Data[c*H*W + y*W + x].
type Activations struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

// SpatialActivations reinterprets the raw target-output values as a spatial
// activation grid according to the family's layout.
//
// Convolutional families export (1, C, H, W) and pass through directly. The
// transformer family exports token embeddings (1, N+1, D): the leading
// classification token is discarded and the N patch tokens reshape to a
// √N x √N grid with the embedding dimension as channels.
func (a Architecture) SpatialActivations(data []float32, shape []int64) (*Activations, error) {
	if a == ArchViT {
		return reshapeTokens(data, shape)
	}

	if len(shape) != 4 || shape[0] != 1 {
		return nil, fmt.Errorf("expected (1,C,H,W) activation shape, got %v", shape)
	}
	c, h, w := int(shape[1]), int(shape[2]), int(shape[3])
	if len(data) != c*h*w {
		return nil, fmt.Errorf("activation data length %d does not match shape %v", len(data), shape)
	}
	return &Activations{Channels: c, Height: h, Width: w, Data: data}, nil
}

func reshapeTokens(data []float32, shape []int64) (*Activations, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("expected (1,tokens,dim) activation shape, got %v", shape)
	}
	tokens, dim := int(shape[1]), int(shape[2])
	if len(data) != tokens*dim {
		return nil, fmt.Errorf("activation data length %d does not match shape %v", len(data), shape)
	}

	patches := tokens - 1 // drop the classification token
	side := int(math.Sqrt(float64(patches)))
	if side*side != patches {
		return nil, fmt.Errorf("%d patch tokens do not form a square grid", patches)
	}

	out := make([]float32, dim*patches)
	for t := 0; t < patches; t++ {
		row := data[(t+1)*dim : (t+2)*dim]
		for c := 0; c < dim; c++ {
			out[c*patches+t] = row[c]
		}
	}
	return &Activations{Channels: dim, Height: side, Width: side, Data: out}, nil
}
