// Package metrics holds per-dataset scores and their overall aggregation.
package metrics

import (
	"encoding/json"
	"math"
	"strconv"

	"neurojudge/internal/evaluator/regions"
)

// Metric names, in report order.
const (
	Accuracy = "accuracy"
	Overlap  = "overlap"
	Distance = "distance"
	Count    = "count"
	Area     = "area"
)

// Names lists every metric in report order.
var Names = []string{Accuracy, Overlap, Distance, Count, Area}

// OverallDataset labels the aggregate record appended by Finalize.
const OverallDataset = "overall"

// nanTolerant metrics ignore NaN when aggregating.
var nanTolerant = map[string]bool{
	Overlap:  true,
	Distance: true,
}

// Value is a float64 that encodes NaN and infinities as JSON null.
type Value float64

func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Value(f)
	return nil
}

// Record is one score for one dataset.
type Record struct {
	Dataset      string `json:"dataset"`
	Contributors string `json:"contributors"`
	Value        Value  `json:"value"`
}

// Metrics maps a metric name to its records in dataset order.
type Metrics map[string][]Record

// New returns an empty Metrics with every name present.
func New() Metrics {
	m := make(Metrics, len(Names))
	for _, name := range Names {
		m[name] = []Record{}
	}
	return m
}

// Append adds a record for name.
func (m Metrics) Append(name, dataset, contributors string, v float64) {
	m[name] = append(m[name], Record{Dataset: dataset, Contributors: contributors, Value: Value(v)})
}

// AppendScore adds one record per metric for a dataset.
func (m Metrics) AppendScore(dataset, contributors string, s Score) {
	m.Append(Accuracy, dataset, contributors, s.Accuracy)
	m.Append(Overlap, dataset, contributors, s.Overlap)
	m.Append(Distance, dataset, contributors, s.Distance)
	m.Append(Count, dataset, contributors, s.Count)
	m.Append(Area, dataset, contributors, s.Area)
}

// Finalize appends the overall record to each metric. Overlap and distance
// average over non-NaN values; the rest use a plain mean so a NaN anywhere
// makes the overall NaN.
func (m Metrics) Finalize() {
	for name, recs := range m {
		vals := make([]float64, len(recs))
		for i, r := range recs {
			vals[i] = float64(r.Value)
		}
		var overall float64
		if nanTolerant[name] {
			overall = regions.NaNMean(vals)
		} else {
			overall = regions.Mean(vals)
		}
		m[name] = append(recs, Record{Dataset: OverallDataset, Value: Value(overall)})
	}
}

// Overall returns the aggregate value for name, if finalized.
func (m Metrics) Overall(name string) (float64, bool) {
	for _, r := range m[name] {
		if r.Dataset == OverallDataset {
			return float64(r.Value), true
		}
	}
	return 0, false
}
