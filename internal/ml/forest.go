package ml

import (
	"math"
	"math/rand"
)

// RandomForest is a bagged ensemble of gini CARTs. Each tree sees a
// bootstrap resample and sqrt(d) random features per split; prediction
// averages leaf class distributions.
type RandomForest struct {
	Trees    []*TreeNode `json:"trees"`
	Classes  int         `json:"classes"`
	NumTrees int         `json:"numTrees"`
	MaxDepth int         `json:"maxDepth"`
	MinLeaf  int         `json:"minLeaf"`
	Seed     int64       `json:"seed"`
}

// NewRandomForest returns a forest with the default ensemble size.
func NewRandomForest(seed int64) *RandomForest {
	return &RandomForest{
		NumTrees: 100,
		MaxDepth: 12,
		MinLeaf:  2,
		Seed:     seed,
	}
}

// Fit trains the ensemble on encoded features.
func (m *RandomForest) Fit(x [][]float64, y []int, classes int) {
	if len(x) == 0 || classes == 0 {
		return
	}
	m.Classes = classes
	m.Trees = make([]*TreeNode, 0, m.NumTrees)

	rng := rand.New(rand.NewSource(m.Seed))
	mtry := int(math.Sqrt(float64(len(x[0]))))
	if mtry < 1 {
		mtry = 1
	}

	all := make([]int, len(x))
	for i := range all {
		all[i] = i
	}

	for t := 0; t < m.NumTrees; t++ {
		sample := make([]int, len(all))
		for i := range sample {
			sample[i] = all[rng.Intn(len(all))]
		}
		p := treeParams{
			maxDepth: m.MaxDepth,
			minLeaf:  m.MinLeaf,
			mtry:     mtry,
			rng:      rng,
		}
		m.Trees = append(m.Trees, buildClassificationTree(x, y, classes, sample, 0, p))
	}
}

// PredictProba averages class distributions over the ensemble.
func (m *RandomForest) PredictProba(row []float64) []float64 {
	probs := make([]float64, m.Classes)
	if len(m.Trees) == 0 {
		return probs
	}
	for _, tree := range m.Trees {
		leaf := tree.Route(row)
		for c := range leaf.Probs {
			if c < len(probs) {
				probs[c] += leaf.Probs[c]
			}
		}
	}
	for c := range probs {
		probs[c] /= float64(len(m.Trees))
	}
	return probs
}

// Predict returns the majority class for one row.
func (m *RandomForest) Predict(row []float64) int {
	return argmax(m.PredictProba(row))
}
