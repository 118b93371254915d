package anomaly

import "math"

// StandardScaler standardizes features to zero mean, unit variance.
type StandardScaler struct {
	Means []float64 `json:"means"`
	Stds  []float64 `json:"stds"`
}

// Fit computes per-column means and standard deviations.
func (s *StandardScaler) Fit(x [][]float64) {
	if len(x) == 0 {
		return
	}
	cols := len(x[0])
	s.Means = make([]float64, cols)
	s.Stds = make([]float64, cols)

	for j := 0; j < cols; j++ {
		sum := 0.0
		for i := range x {
			sum += x[i][j]
		}
		mean := sum / float64(len(x))

		variance := 0.0
		for i := range x {
			d := x[i][j] - mean
			variance += d * d
		}
		variance /= float64(len(x))

		std := math.Sqrt(variance)
		if std == 0 {
			std = 1 // constant column, leave centered values at zero
		}

		s.Means[j] = mean
		s.Stds[j] = std
	}
}

// Transform standardizes rows using the fitted statistics.
func (s *StandardScaler) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i := range x {
		row := make([]float64, len(x[i]))
		for j := range x[i] {
			row[j] = (x[i][j] - s.Means[j]) / s.Stds[j]
		}
		out[i] = row
	}
	return out
}

// FitTransform fits the scaler and transforms in one pass.
func (s *StandardScaler) FitTransform(x [][]float64) [][]float64 {
	s.Fit(x)
	return s.Transform(x)
}
