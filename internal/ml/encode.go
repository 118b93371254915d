// Package ml implements the learners and plumbing behind the opaque
// model-artifact contract: encoders, train/test splitting, candidate
// classifiers, evaluation metrics and JSON-serializable pipelines.
package ml

import (
	"math"
	"sort"
)

// Sample is one row of mixed-type features.
type Sample struct {
	Numeric     []float64
	Categorical []string
}

// Encoding selects how categorical columns are turned numeric.
type Encoding string

const (
	// EncodingOneHot expands categories to indicator columns and
	// standardizes numeric columns. Suits linear models.
	EncodingOneHot Encoding = "onehot"

	// EncodingOrdinal maps categories to integer codes (unknown -> -1)
	// and leaves numeric columns unscaled. Suits tree models.
	EncodingOrdinal Encoding = "ordinal"
)

// Encoder converts samples into dense numeric matrices. Numeric columns
// are median-imputed; categorical columns are imputed with the most
// frequent level. Unknown levels at transform time are safe: all-zero
// indicators for one-hot, -1 for ordinal.
type Encoder struct {
	Kind Encoding `json:"kind"`

	NumMedians []float64 `json:"numMedians"`

	// One-hot scaling statistics (per numeric column).
	NumMeans []float64 `json:"numMeans,omitempty"`
	NumStds  []float64 `json:"numStds,omitempty"`

	// CatLevels holds the learned vocabulary per categorical column,
	// in first-seen order. CatModes is the most frequent level.
	CatLevels [][]string `json:"catLevels"`
	CatModes  []string   `json:"catModes"`

	levelIndex []map[string]int
}

// Fit learns imputation defaults, vocabularies and scaling statistics.
func (e *Encoder) Fit(samples []Sample) {
	if len(samples) == 0 {
		return
	}

	numCols := len(samples[0].Numeric)
	catCols := len(samples[0].Categorical)

	e.NumMedians = make([]float64, numCols)
	for j := 0; j < numCols; j++ {
		var vals []float64
		for i := range samples {
			v := samples[i].Numeric[j]
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				vals = append(vals, v)
			}
		}
		e.NumMedians[j] = median(vals)
	}

	e.CatLevels = make([][]string, catCols)
	e.CatModes = make([]string, catCols)
	e.levelIndex = make([]map[string]int, catCols)
	for j := 0; j < catCols; j++ {
		counts := make(map[string]int)
		index := make(map[string]int)
		for i := range samples {
			v := samples[i].Categorical[j]
			if v == "" {
				continue
			}
			if _, ok := index[v]; !ok {
				index[v] = len(e.CatLevels[j])
				e.CatLevels[j] = append(e.CatLevels[j], v)
			}
			counts[v]++
		}
		e.levelIndex[j] = index

		best, bestCount := "", -1
		for _, level := range e.CatLevels[j] {
			if counts[level] > bestCount {
				best, bestCount = level, counts[level]
			}
		}
		e.CatModes[j] = best
	}

	if e.Kind == EncodingOneHot {
		e.fitScaling(samples, numCols)
	}
}

func (e *Encoder) fitScaling(samples []Sample, numCols int) {
	e.NumMeans = make([]float64, numCols)
	e.NumStds = make([]float64, numCols)
	for j := 0; j < numCols; j++ {
		sum := 0.0
		for i := range samples {
			sum += e.imputed(samples[i].Numeric[j], j)
		}
		mean := sum / float64(len(samples))

		variance := 0.0
		for i := range samples {
			d := e.imputed(samples[i].Numeric[j], j) - mean
			variance += d * d
		}
		std := math.Sqrt(variance / float64(len(samples)))
		if std == 0 {
			std = 1
		}
		e.NumMeans[j] = mean
		e.NumStds[j] = std
	}
}

// Transform encodes samples into a dense matrix.
func (e *Encoder) Transform(samples []Sample) [][]float64 {
	out := make([][]float64, len(samples))
	for i := range samples {
		out[i] = e.TransformOne(samples[i])
	}
	return out
}

// TransformOne encodes a single sample.
func (e *Encoder) TransformOne(s Sample) []float64 {
	var row []float64

	for j := range e.NumMedians {
		v := 0.0
		if j < len(s.Numeric) {
			v = e.imputed(s.Numeric[j], j)
		} else {
			v = e.NumMedians[j]
		}
		if e.Kind == EncodingOneHot && len(e.NumStds) > j {
			v = (v - e.NumMeans[j]) / e.NumStds[j]
		}
		row = append(row, v)
	}

	for j := range e.CatLevels {
		v := ""
		if j < len(s.Categorical) {
			v = s.Categorical[j]
		}
		if v == "" {
			v = e.CatModes[j]
		}

		idx, known := e.index(j, v)
		switch e.Kind {
		case EncodingOneHot:
			indicators := make([]float64, len(e.CatLevels[j]))
			if known {
				indicators[idx] = 1
			}
			row = append(row, indicators...)
		default:
			code := -1.0
			if known {
				code = float64(idx)
			}
			row = append(row, code)
		}
	}

	return row
}

// Width returns the encoded feature count.
func (e *Encoder) Width() int {
	w := len(e.NumMedians)
	for j := range e.CatLevels {
		if e.Kind == EncodingOneHot {
			w += len(e.CatLevels[j])
		} else {
			w++
		}
	}
	return w
}

func (e *Encoder) imputed(v float64, col int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return e.NumMedians[col]
	}
	return v
}

func (e *Encoder) index(col int, level string) (int, bool) {
	if e.levelIndex == nil {
		e.rebuildIndex()
	}
	idx, ok := e.levelIndex[col][level]
	return idx, ok
}

// rebuildIndex restores the lookup maps after JSON deserialization.
func (e *Encoder) rebuildIndex() {
	e.levelIndex = make([]map[string]int, len(e.CatLevels))
	for j := range e.CatLevels {
		e.levelIndex[j] = make(map[string]int, len(e.CatLevels[j]))
		for i, level := range e.CatLevels[j] {
			e.levelIndex[j][level] = i
		}
	}
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
