// Package regions models detected sources as pixel sets and implements the
// comparisons used to score a submission against ground truth.
package regions

import (
	"encoding/json"
	"fmt"
	"math"
)

// Point is a pixel position as (row, column).
type Point [2]int

// Source is one detected region.
type Source struct {
	Coordinates []Point `json:"coordinates"`
}

type sourceJSON struct {
	Coordinates [][]float64 `json:"coordinates"`
}

// UnmarshalJSON accepts integer or float coordinates; floats are rounded.
func (s *Source) UnmarshalJSON(data []byte) error {
	var raw sourceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pts := make([]Point, 0, len(raw.Coordinates))
	for i, c := range raw.Coordinates {
		if len(c) != 2 {
			return fmt.Errorf("coordinate %d has %d components, want 2", i, len(c))
		}
		pts = append(pts, Point{int(math.Round(c[0])), int(math.Round(c[1]))})
	}
	s.Coordinates = pts
	return nil
}

// Center is the mean coordinate.
func (s Source) Center() (float64, float64) {
	if len(s.Coordinates) == 0 {
		return math.NaN(), math.NaN()
	}
	var r, c float64
	for _, p := range s.Coordinates {
		r += float64(p[0])
		c += float64(p[1])
	}
	n := float64(len(s.Coordinates))
	return r / n, c / n
}

func (s Source) pixels() map[Point]struct{} {
	set := make(map[Point]struct{}, len(s.Coordinates))
	for _, p := range s.Coordinates {
		set[p] = struct{}{}
	}
	return set
}

// Area is the number of distinct pixels.
func (s Source) Area() int {
	return len(s.pixels())
}

// CenterDistance is the euclidean distance between the two centers.
func (s Source) CenterDistance(o Source) float64 {
	r1, c1 := s.Center()
	r2, c2 := o.Center()
	return math.Hypot(r1-r2, c1-c2)
}

// Overlap is intersection over union of the two pixel sets.
func (s Source) Overlap(o Source) float64 {
	a, b := s.pixels(), o.pixels()
	if len(a) == 0 && len(b) == 0 {
		return math.NaN()
	}
	hit := 0
	for p := range a {
		if _, ok := b[p]; ok {
			hit++
		}
	}
	union := len(a) + len(b) - hit
	return float64(hit) / float64(union)
}
