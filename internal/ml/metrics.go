package ml

// Accuracy is the fraction of exact matches between predicted and true
// labels. Empty input scores zero.
func Accuracy(truth, predicted []int) float64 {
	if len(truth) == 0 || len(truth) != len(predicted) {
		return 0
	}
	hits := 0
	for i := range truth {
		if truth[i] == predicted[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(truth))
}

// MacroRecall averages per-class recall over the classes present in the
// truth labels. Classes with no true members contribute zero.
func MacroRecall(truth, predicted []int, classes int) float64 {
	if len(truth) == 0 || classes == 0 {
		return 0
	}
	tp := make([]float64, classes)
	fn := make([]float64, classes)
	for i := range truth {
		if truth[i] == predicted[i] {
			tp[truth[i]]++
		} else {
			fn[truth[i]]++
		}
	}

	total := 0.0
	for c := 0; c < classes; c++ {
		if tp[c]+fn[c] > 0 {
			total += tp[c] / (tp[c] + fn[c])
		}
	}
	return total / float64(classes)
}

// MacroF1 averages the per-class harmonic mean of precision and recall.
// Classes with zero precision and recall contribute zero rather than
// propagating a division error.
func MacroF1(truth, predicted []int, classes int) float64 {
	if len(truth) == 0 || classes == 0 {
		return 0
	}
	tp := make([]float64, classes)
	fp := make([]float64, classes)
	fn := make([]float64, classes)
	for i := range truth {
		if truth[i] == predicted[i] {
			tp[truth[i]]++
			continue
		}
		fn[truth[i]]++
		fp[predicted[i]]++
	}

	total := 0.0
	for c := 0; c < classes; c++ {
		var precision, recall float64
		if tp[c]+fp[c] > 0 {
			precision = tp[c] / (tp[c] + fp[c])
		}
		if tp[c]+fn[c] > 0 {
			recall = tp[c] / (tp[c] + fn[c])
		}
		if precision+recall > 0 {
			total += 2 * precision * recall / (precision + recall)
		}
	}
	return total / float64(classes)
}
