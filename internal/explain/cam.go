// Package explain renders per-model heatmap overlays showing which image
// regions drove a model's top prediction.
package explain

import (
	"fmt"

	"github.com/mkowalczyk/dermascan/internal/model"
)

// CAM computes a normalized class-activation map from the architecture-
// resolved activations and the classifier-head weight row of the predicted
// class: each channel's spatial activation is weighted by its head weight,
// summed, rectified, and scaled to [0,1].
func CAM(acts *model.Activations, headRow []float32) ([]float32, error) {
	if acts == nil || acts.Channels == 0 || acts.Height == 0 || acts.Width == 0 {
		return nil, fmt.Errorf("empty activations")
	}
	if len(headRow) != acts.Channels {
		return nil, fmt.Errorf("head row has %d weights, activations have %d channels",
			len(headRow), acts.Channels)
	}

	plane := acts.Height * acts.Width
	cam := make([]float32, plane)
	for c := 0; c < acts.Channels; c++ {
		w := headRow[c]
		if w == 0 {
			continue
		}
		channel := acts.Data[c*plane : (c+1)*plane]
		for i, v := range channel {
			cam[i] += w * v
		}
	}

	var maxVal float32
	for i, v := range cam {
		if v < 0 {
			cam[i] = 0
		} else if v > maxVal {
			maxVal = v
		}
	}
	if maxVal > 0 {
		for i := range cam {
			cam[i] /= maxVal
		}
	}
	return cam, nil
}
