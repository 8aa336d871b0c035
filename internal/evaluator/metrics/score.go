package metrics

import "neurojudge/internal/evaluator/regions"

const (
	// MatchThreshold is the center distance under which a source counts as found.
	MatchThreshold = 10.0
	// MinDistance bounds how far apart matched sources may be.
	MinDistance = 10.0
)

// Score is the set of values computed for one dataset.
type Score struct {
	Accuracy float64
	Overlap  float64
	Distance float64
	Count    float64
	Area     float64
}

// Compute scores found against truth.
func Compute(truth, found regions.Set) Score {
	return Score{
		Accuracy: truth.Similarity(found, MatchThreshold, MinDistance),
		Overlap:  regions.NaNMean(truth.Overlap(found, MinDistance)),
		Distance: regions.NaNMean(truth.Distance(found, MinDistance)),
		Count:    float64(found.Count()),
		Area:     regions.Mean(found.Areas()),
	}
}
