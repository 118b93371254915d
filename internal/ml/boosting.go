package ml

import "math"

// GradientBoosting is a multiclass gradient-boosted tree ensemble.
// Rounds of shallow regression trees fit softmax residuals per class,
// with Newton-step leaf values and shrinkage.
type GradientBoosting struct {
	// Rounds[r][c] is the round-r tree for class c.
	Rounds  [][]*TreeNode `json:"rounds"`
	Classes int           `json:"classes"`

	NumRounds    int     `json:"numRounds"`
	LearningRate float64 `json:"learningRate"`
	MaxDepth     int     `json:"maxDepth"`
	MinLeaf      int     `json:"minLeaf"`
}

// NewGradientBoosting returns an ensemble with the default schedule.
func NewGradientBoosting() *GradientBoosting {
	return &GradientBoosting{
		NumRounds:    50,
		LearningRate: 0.1,
		MaxDepth:     3,
		MinLeaf:      5,
	}
}

// Fit trains the ensemble on encoded features.
func (m *GradientBoosting) Fit(x [][]float64, y []int, classes int) {
	if len(x) == 0 || classes == 0 {
		return
	}
	m.Classes = classes
	m.Rounds = make([][]*TreeNode, 0, m.NumRounds)

	n := len(x)
	scores := make([][]float64, n)
	for i := range scores {
		scores[i] = make([]float64, classes)
	}

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	residuals := make([]float64, n)

	for round := 0; round < m.NumRounds; round++ {
		roundTrees := make([]*TreeNode, classes)

		for c := 0; c < classes; c++ {
			for i := 0; i < n; i++ {
				p := softmax(scores[i])[c]
				target := 0.0
				if y[i] == c {
					target = 1
				}
				residuals[i] = target - p
			}

			p := treeParams{maxDepth: m.MaxDepth, minLeaf: m.MinLeaf}
			tree := buildRegressionTree(x, residuals, all, 0, p, func(indices []int) float64 {
				return newtonLeaf(residuals, indices, classes)
			})
			roundTrees[c] = tree

			for i := 0; i < n; i++ {
				scores[i][c] += m.LearningRate * tree.Route(x[i]).Value
			}
		}

		m.Rounds = append(m.Rounds, roundTrees)
	}
}

// newtonLeaf is the one-step Newton estimate for a softmax residual
// leaf: (k-1)/k * sum(r) / sum(|r| * (1 - |r|)).
func newtonLeaf(residuals []float64, indices []int, classes int) float64 {
	num, den := 0.0, 0.0
	for _, i := range indices {
		r := residuals[i]
		num += r
		den += math.Abs(r) * (1 - math.Abs(r))
	}
	if den < 1e-12 {
		return 0
	}
	return (float64(classes-1) / float64(classes)) * num / den
}

// PredictProba returns the softmax over accumulated ensemble scores.
func (m *GradientBoosting) PredictProba(row []float64) []float64 {
	scores := make([]float64, m.Classes)
	for _, roundTrees := range m.Rounds {
		for c, tree := range roundTrees {
			if tree != nil && c < len(scores) {
				scores[c] += m.LearningRate * tree.Route(row).Value
			}
		}
	}
	return softmax(scores)
}

// Predict returns the most probable class for one row.
func (m *GradientBoosting) Predict(row []float64) int {
	return argmax(m.PredictProba(row))
}
