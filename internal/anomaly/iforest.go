package anomaly

import (
	"math"
	"math/rand"
	"sort"
)

// IsolationForest is an unsupervised outlier detector. Anomalous points
// isolate in fewer random splits, giving shorter average path lengths.
type IsolationForest struct {
	trees       []*isoNode
	sampleSize  int
	heightLimit int
	offset      float64
}

type isoNode struct {
	// Internal nodes split on feature < threshold.
	feature   int
	threshold float64
	left      *isoNode
	right     *isoNode

	// Leaves record the number of samples that fell through.
	size int
	leaf bool
}

// NewIsolationForest builds and fits a forest of the given size.
// contamination sets the decision offset so that roughly that fraction
// of the training rows gets a negative decision value.
func NewIsolationForest(x [][]float64, trees, sampleSize int, contamination float64, seed int64) *IsolationForest {
	if trees <= 0 {
		trees = 100
	}
	if sampleSize <= 0 || sampleSize > len(x) {
		sampleSize = len(x)
		if sampleSize > 256 {
			sampleSize = 256
		}
	}

	f := &IsolationForest{
		sampleSize:  sampleSize,
		heightLimit: int(math.Ceil(math.Log2(math.Max(2, float64(sampleSize))))),
	}

	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < trees; i++ {
		sample := subsample(x, sampleSize, rng)
		f.trees = append(f.trees, buildIsoTree(sample, 0, f.heightLimit, rng))
	}

	f.offset = f.fitOffset(x, contamination)
	return f
}

// Score returns the anomaly score in (0,1]; higher = more anomalous.
func (f *IsolationForest) Score(row []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}

	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, row, 0)
	}
	avg := total / float64(len(f.trees))

	denom := avgPathLength(f.sampleSize)
	if denom <= 0 {
		return 0
	}
	return math.Pow(2, -avg/denom)
}

// DecisionValue mirrors the convention that lower = more anomalous:
// it shifts the score so values below zero fall in the contaminated tail.
func (f *IsolationForest) DecisionValue(row []float64) float64 {
	return f.offset - f.Score(row)
}

// DecisionValues scores a whole matrix.
func (f *IsolationForest) DecisionValues(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = f.DecisionValue(x[i])
	}
	return out
}

// fitOffset picks the score quantile at 1-contamination over the
// training data, so DecisionValue < 0 for ~contamination of rows.
func (f *IsolationForest) fitOffset(x [][]float64, contamination float64) float64 {
	if contamination <= 0 || contamination >= 1 || len(x) == 0 {
		return 0.5
	}

	scores := make([]float64, len(x))
	for i := range x {
		scores[i] = f.Score(x[i])
	}
	sort.Float64s(scores)

	idx := int(float64(len(scores)) * (1 - contamination))
	if idx >= len(scores) {
		idx = len(scores) - 1
	}
	return scores[idx]
}

func buildIsoTree(x [][]float64, depth, limit int, rng *rand.Rand) *isoNode {
	if depth >= limit || len(x) <= 1 {
		return &isoNode{leaf: true, size: len(x)}
	}

	cols := len(x[0])
	feature := rng.Intn(cols)

	lo, hi := x[0][feature], x[0][feature]
	for _, row := range x {
		if row[feature] < lo {
			lo = row[feature]
		}
		if row[feature] > hi {
			hi = row[feature]
		}
	}
	if lo == hi {
		return &isoNode{leaf: true, size: len(x)}
	}

	threshold := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range x {
		if row[feature] < threshold {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &isoNode{
		feature:   feature,
		threshold: threshold,
		left:      buildIsoTree(left, depth+1, limit, rng),
		right:     buildIsoTree(right, depth+1, limit, rng),
	}
}

func pathLength(node *isoNode, row []float64, depth float64) float64 {
	if node.leaf {
		return depth + avgPathLength(node.size)
	}
	if row[node.feature] < node.threshold {
		return pathLength(node.left, row, depth+1)
	}
	return pathLength(node.right, row, depth+1)
}

// avgPathLength is c(n), the average BST unsuccessful-search path length.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649 // Euler-Mascheroni
	return 2*h - 2*float64(n-1)/float64(n)
}

func subsample(x [][]float64, size int, rng *rand.Rand) [][]float64 {
	if size >= len(x) {
		return x
	}
	idx := rng.Perm(len(x))[:size]
	out := make([][]float64, size)
	for i, j := range idx {
		out[i] = x[j]
	}
	return out
}

