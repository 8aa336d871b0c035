package regions

import (
	"encoding/json"
	"fmt"
	"math"
)

// Set is an ordered collection of sources, as produced by an algorithm or
// loaded from a ground truth file.
type Set []Source

// ParseSet decodes a JSON array of sources.
func ParseSet(data []byte) (Set, error) {
	var s Set
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	return s, nil
}

// Count is the number of sources.
func (s Set) Count() int {
	return len(s)
}

// Areas lists each source's area.
func (s Set) Areas() []float64 {
	out := make([]float64, len(s))
	for i, src := range s {
		out[i] = float64(src.Area())
	}
	return out
}

// Match pairs every source in s with its nearest source in other by center
// distance. Sources are not matched uniquely. An index of -1 means nothing in
// other lies within minDistance.
func (s Set) Match(other Set, minDistance float64) []int {
	out := make([]int, len(s))
	for i, src := range s {
		best, bestDist := -1, math.Inf(1)
		for j, cand := range other {
			d := src.CenterDistance(cand)
			if d < bestDist {
				best, bestDist = j, d
			}
		}
		if best >= 0 && bestDist > minDistance {
			best = -1
		}
		out[i] = best
	}
	return out
}

// Distance is, per source in s, the center distance to its match in other,
// or NaN when unmatched.
func (s Set) Distance(other Set, minDistance float64) []float64 {
	matches := s.Match(other, minDistance)
	out := make([]float64, len(s))
	for i, j := range matches {
		if j < 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = s[i].CenterDistance(other[j])
	}
	return out
}

// Overlap is, per source in s, intersection over union with its match in
// other, or NaN when unmatched.
func (s Set) Overlap(other Set, minDistance float64) []float64 {
	matches := s.Match(other, minDistance)
	out := make([]float64, len(s))
	for i, j := range matches {
		if j < 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = s[i].Overlap(other[j])
	}
	return out
}

// Similarity under the distance metric: the fraction of sources in s whose
// matched distance is below thresh. An empty s yields NaN.
func (s Set) Similarity(other Set, thresh, minDistance float64) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	hits := 0
	for _, d := range s.Distance(other, minDistance) {
		if d < thresh {
			hits++
		}
	}
	return float64(hits) / float64(len(s))
}

// Mean is the arithmetic mean; any NaN, or an empty slice, yields NaN.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// NaNMean averages the non-NaN values; NaN if there are none.
func NaNMean(vals []float64) float64 {
	var (
		sum float64
		n   int
	)
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
