package ml

import (
	"math/rand"
	"sort"
)

// StratifiedSplit partitions sample indices into train and test sets,
// preserving per-class proportions. Classes with a single member stay
// in the training set.
func StratifiedSplit(y []int, testFraction float64, seed int64) (train, test []int) {
	rng := rand.New(rand.NewSource(seed))

	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}

	classes := make([]int, 0, len(byClass))
	for label := range byClass {
		classes = append(classes, label)
	}
	sort.Ints(classes)

	for _, label := range classes {
		indices := byClass[label]
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		n := int(float64(len(indices))*testFraction + 0.5)
		if n >= len(indices) {
			n = len(indices) - 1
		}
		if n < 1 && len(indices) > 1 {
			n = 1
		}
		if n < 0 {
			n = 0
		}

		test = append(test, indices[:n]...)
		train = append(train, indices[n:]...)
	}

	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

// Subset gathers the rows of x at the given indices.
func Subset(x [][]float64, indices []int) [][]float64 {
	out := make([][]float64, len(indices))
	for i, idx := range indices {
		out[i] = x[idx]
	}
	return out
}

// SubsetLabels gathers the labels at the given indices.
func SubsetLabels(y []int, indices []int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = y[idx]
	}
	return out
}
