package ml

import (
	"math"
	"math/rand"
	"sort"
)

// TreeNode is a binary decision tree node. Internal nodes route rows by
// a single feature threshold (left when value <= threshold); leaves
// carry either a class distribution or a regression value.
type TreeNode struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t"`
	Left      *TreeNode `json:"l,omitempty"`
	Right     *TreeNode `json:"r,omitempty"`

	Leaf  bool      `json:"leaf,omitempty"`
	Probs []float64 `json:"p,omitempty"`
	Value float64   `json:"v,omitempty"`
}

// Route walks the tree to the leaf for one row.
func (n *TreeNode) Route(row []float64) *TreeNode {
	node := n
	for !node.Leaf {
		v := 0.0
		if node.Feature < len(row) {
			v = row[node.Feature]
		}
		if v <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

type treeParams struct {
	maxDepth int
	minLeaf  int
	// mtry features are sampled per split when > 0, otherwise all
	// features are considered.
	mtry int
	rng  *rand.Rand
}

// buildClassificationTree grows a gini-impurity CART over the rows at
// the given indices.
func buildClassificationTree(x [][]float64, y []int, classes int, indices []int, depth int, p treeParams) *TreeNode {
	counts := make([]float64, classes)
	for _, i := range indices {
		counts[y[i]]++
	}

	if depth >= p.maxDepth || len(indices) < 2*p.minLeaf || pure(counts) {
		return classLeaf(counts)
	}

	feature, threshold, ok := bestSplit(x, indices, p, func(leftIdx, rightIdx []int) float64 {
		return giniSum(y, classes, leftIdx) + giniSum(y, classes, rightIdx)
	})
	if !ok {
		return classLeaf(counts)
	}

	left, right := partition(x, indices, feature, threshold)
	if len(left) < p.minLeaf || len(right) < p.minLeaf {
		return classLeaf(counts)
	}

	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      buildClassificationTree(x, y, classes, left, depth+1, p),
		Right:     buildClassificationTree(x, y, classes, right, depth+1, p),
	}
}

// buildRegressionTree grows a variance-reduction CART. leafValue maps
// the row indices reaching a leaf to that leaf's output, which lets
// boosting install Newton-step values instead of plain means.
func buildRegressionTree(x [][]float64, targets []float64, indices []int, depth int, p treeParams, leafValue func([]int) float64) *TreeNode {
	if depth >= p.maxDepth || len(indices) < 2*p.minLeaf {
		return &TreeNode{Leaf: true, Value: leafValue(indices)}
	}

	feature, threshold, ok := bestSplit(x, indices, p, func(leftIdx, rightIdx []int) float64 {
		return sse(targets, leftIdx) + sse(targets, rightIdx)
	})
	if !ok {
		return &TreeNode{Leaf: true, Value: leafValue(indices)}
	}

	left, right := partition(x, indices, feature, threshold)
	if len(left) < p.minLeaf || len(right) < p.minLeaf {
		return &TreeNode{Leaf: true, Value: leafValue(indices)}
	}

	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      buildRegressionTree(x, targets, left, depth+1, p, leafValue),
		Right:     buildRegressionTree(x, targets, right, depth+1, p, leafValue),
	}
}

// bestSplit scans candidate features for the threshold minimizing the
// given impurity score over the induced partition.
func bestSplit(x [][]float64, indices []int, p treeParams, score func(left, right []int) float64) (int, float64, bool) {
	if len(indices) == 0 {
		return 0, 0, false
	}
	features := len(x[indices[0]])
	candidates := featureCandidates(features, p)

	bestFeature, bestThreshold := -1, 0.0
	bestScore := math.Inf(1)
	sorted := make([]int, len(indices))

	for _, f := range candidates {
		copy(sorted, indices)
		sort.Slice(sorted, func(a, b int) bool {
			return x[sorted[a]][f] < x[sorted[b]][f]
		})

		for cut := 1; cut < len(sorted); cut++ {
			lo, hi := x[sorted[cut-1]][f], x[sorted[cut]][f]
			if lo == hi {
				continue
			}
			s := score(sorted[:cut], sorted[cut:])
			if s < bestScore {
				bestScore = s
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

func featureCandidates(features int, p treeParams) []int {
	if p.mtry <= 0 || p.mtry >= features || p.rng == nil {
		all := make([]int, features)
		for i := range all {
			all[i] = i
		}
		return all
	}
	perm := p.rng.Perm(features)
	return perm[:p.mtry]
}

func partition(x [][]float64, indices []int, feature int, threshold float64) (left, right []int) {
	for _, i := range indices {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func classLeaf(counts []float64) *TreeNode {
	total := 0.0
	for _, c := range counts {
		total += c
	}
	probs := make([]float64, len(counts))
	if total > 0 {
		for i, c := range counts {
			probs[i] = c / total
		}
	}
	return &TreeNode{Leaf: true, Probs: probs}
}

func pure(counts []float64) bool {
	nonzero := 0
	for _, c := range counts {
		if c > 0 {
			nonzero++
		}
	}
	return nonzero <= 1
}

// giniSum is gini impurity weighted by subset size, so summing both
// sides of a split compares directly across cut points.
func giniSum(y []int, classes int, indices []int) float64 {
	if len(indices) == 0 {
		return 0
	}
	counts := make([]float64, classes)
	for _, i := range indices {
		counts[y[i]]++
	}
	n := float64(len(indices))
	impurity := 1.0
	for _, c := range counts {
		p := c / n
		impurity -= p * p
	}
	return impurity * n
}

func sse(targets []float64, indices []int) float64 {
	if len(indices) == 0 {
		return 0
	}
	mean := 0.0
	for _, i := range indices {
		mean += targets[i]
	}
	mean /= float64(len(indices))

	total := 0.0
	for _, i := range indices {
		d := targets[i] - mean
		total += d * d
	}
	return total
}
