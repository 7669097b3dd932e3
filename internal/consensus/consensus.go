// Package consensus combines per-model top-1 predictions into a single
// aggregated diagnosis.
package consensus

import (
	"errors"

	"github.com/mkowalczyk/dermascan/internal/catalog"
	"github.com/mkowalczyk/dermascan/pkg/models"
)

// ErrNoOutcomes means every model failed for this image; there is nothing
// to aggregate and nothing worth persisting.
var ErrNoOutcomes = errors.New("no successful model outcomes")

// Result is the aggregated diagnosis across all successful models.
type Result struct {
	ClassKey   string
	Risk       int
	Confidence float64
}

// Aggregate tallies one vote per model for its top-1 class. The class with
// the most votes wins; a tie goes to the class first voted for in model
// execution order. Confidence is the mean of the top-1
// confidences of the models that voted for the winner, and risk comes from
// the label catalog, never from the per-model risk tiers.
func Aggregate(outcomes []models.ModelOutcome) (Result, error) {
	if len(outcomes) == 0 {
		return Result{}, ErrNoOutcomes
	}

	votes := make(map[string]int, len(outcomes))
	confSums := make(map[string]float64, len(outcomes))
	order := make([]string, 0, len(outcomes))

	for _, o := range outcomes {
		top := o.Top()
		if _, seen := votes[top.ClassKey]; !seen {
			order = append(order, top.ClassKey)
		}
		votes[top.ClassKey]++
		confSums[top.ClassKey] += top.Confidence
	}

	winner := order[0]
	for _, key := range order[1:] {
		if votes[key] > votes[winner] {
			winner = key
		}
	}

	return Result{
		ClassKey:   winner,
		Risk:       catalog.Risk(winner),
		Confidence: confSums[winner] / float64(votes[winner]),
	}, nil
}
