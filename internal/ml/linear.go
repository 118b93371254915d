package ml

import "math"

// LogisticRegression is a multinomial (softmax) classifier trained by
// full-batch gradient descent with L2 regularization and balanced class
// weighting, so minority risk levels still pull on the gradient.
type LogisticRegression struct {
	Weights    [][]float64 `json:"weights"`
	Intercepts []float64   `json:"intercepts"`
	Classes    int         `json:"classes"`

	LearningRate float64 `json:"learningRate"`
	Iterations   int     `json:"iterations"`
	L2           float64 `json:"l2"`
}

// NewLogisticRegression returns a classifier with the default training
// schedule.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{
		LearningRate: 0.1,
		Iterations:   300,
		L2:           1e-4,
	}
}

// Fit trains the classifier on encoded features.
func (m *LogisticRegression) Fit(x [][]float64, y []int, classes int) {
	if len(x) == 0 || classes == 0 {
		return
	}
	features := len(x[0])
	m.Classes = classes
	m.Weights = make([][]float64, classes)
	for c := range m.Weights {
		m.Weights[c] = make([]float64, features)
	}
	m.Intercepts = make([]float64, classes)

	// Balanced sample weights: n / (k * count[class]).
	counts := make([]float64, classes)
	for _, label := range y {
		counts[label]++
	}
	sampleWeight := make([]float64, len(y))
	for i, label := range y {
		if counts[label] > 0 {
			sampleWeight[i] = float64(len(y)) / (float64(classes) * counts[label])
		}
	}

	n := float64(len(x))
	gradW := make([][]float64, classes)
	for c := range gradW {
		gradW[c] = make([]float64, features)
	}
	gradB := make([]float64, classes)

	for it := 0; it < m.Iterations; it++ {
		for c := 0; c < classes; c++ {
			for j := 0; j < features; j++ {
				gradW[c][j] = m.L2 * m.Weights[c][j]
			}
			gradB[c] = 0
		}

		for i := range x {
			probs := m.PredictProba(x[i])
			for c := 0; c < classes; c++ {
				residual := probs[c]
				if c == y[i] {
					residual -= 1
				}
				residual *= sampleWeight[i] / n
				for j := 0; j < features; j++ {
					gradW[c][j] += residual * x[i][j]
				}
				gradB[c] += residual
			}
		}

		for c := 0; c < classes; c++ {
			for j := 0; j < features; j++ {
				m.Weights[c][j] -= m.LearningRate * gradW[c][j]
			}
			m.Intercepts[c] -= m.LearningRate * gradB[c]
		}
	}
}

// PredictProba returns the softmax class distribution for one row.
func (m *LogisticRegression) PredictProba(row []float64) []float64 {
	scores := make([]float64, m.Classes)
	for c := 0; c < m.Classes; c++ {
		s := m.Intercepts[c]
		w := m.Weights[c]
		for j := range w {
			if j < len(row) {
				s += w[j] * row[j]
			}
		}
		scores[c] = s
	}
	return softmax(scores)
}

// Predict returns the most probable class for one row.
func (m *LogisticRegression) Predict(row []float64) int {
	return argmax(m.PredictProba(row))
}

func softmax(scores []float64) []float64 {
	max := math.Inf(-1)
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	sum := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	if sum == 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func argmax(v []float64) int {
	best, bestVal := 0, math.Inf(-1)
	for i, x := range v {
		if x > bestVal {
			best, bestVal = i, x
		}
	}
	return best
}
