// Package inference turns raw model logits into ranked class predictions.
package inference

import (
	"fmt"
	"math"
	"sort"

	"github.com/mkowalczyk/dermascan/internal/catalog"
	"github.com/mkowalczyk/dermascan/pkg/models"
)

// TopK is the number of ranked predictions produced per model.
const TopK = 3

// Softmax converts logits to a probability distribution over the full label
// set. Computed in float64 with the max-subtraction trick for stability.
func Softmax(logits []float32) []float64 {
	maxLogit := float64(logits[0])
	for _, v := range logits[1:] {
		if float64(v) > maxLogit {
			maxLogit = float64(v)
		}
	}

	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(float64(v) - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Rank returns class indices in descending probability order. The sort is
// stable, so equal probabilities keep the model's native class ordering.
func Rank(probs []float64) []int {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})
	return idx
}

// Predictions computes the k highest-probability classes for one model's
// logits, resolved against the label catalog. The returned indices parallel
// the predictions (indices[0] is the top-1 class index).
func Predictions(logits []float32, k int) ([]models.ClassPrediction, []int, error) {
	if len(logits) != catalog.NumClasses() {
		return nil, nil, fmt.Errorf("model produced %d logits, catalog has %d classes",
			len(logits), catalog.NumClasses())
	}
	if k <= 0 || k > len(logits) {
		return nil, nil, fmt.Errorf("invalid k=%d for %d classes", k, len(logits))
	}

	probs := Softmax(logits)
	ranked := Rank(probs)[:k]

	preds := make([]models.ClassPrediction, 0, k)
	for _, idx := range ranked {
		c, err := catalog.ByIndex(idx)
		if err != nil {
			return nil, nil, err
		}
		preds = append(preds, models.ClassPrediction{
			ClassKey:      c.Key,
			NameEN:        c.NameEN,
			NamePL:        c.NamePL,
			Confidence:    probs[idx],
			RiskTier:      c.Risk,
			DescriptionEN: c.DescriptionEN,
			DescriptionPL: c.DescriptionPL,
		})
	}
	return preds, ranked, nil
}
