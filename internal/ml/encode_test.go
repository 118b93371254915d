package ml

import (
	"math"
	"testing"
)

func TestEncoderOneHot(t *testing.T) {
	samples := []Sample{
		{Numeric: []float64{1, 10}, Categorical: []string{"a"}},
		{Numeric: []float64{2, 20}, Categorical: []string{"b"}},
		{Numeric: []float64{3, 30}, Categorical: []string{"a"}},
	}

	enc := &Encoder{Kind: EncodingOneHot}
	enc.Fit(samples)

	if enc.Width() != 4 {
		t.Fatalf("Width() = %d, want 4", enc.Width())
	}
	if enc.CatModes[0] != "a" {
		t.Errorf("CatModes[0] = %q, want %q", enc.CatModes[0], "a")
	}

	row := enc.TransformOne(samples[1])
	if len(row) != 4 {
		t.Fatalf("encoded width = %d, want 4", len(row))
	}
	// Numeric columns are standardized, so the middle sample lands on 0.
	if math.Abs(row[0]) > 1e-9 || math.Abs(row[1]) > 1e-9 {
		t.Errorf("standardized middle sample = %v, want zeros", row[:2])
	}
	if row[2] != 0 || row[3] != 1 {
		t.Errorf("one-hot for %q = %v, want [0 1]", "b", row[2:])
	}

	// Unknown level encodes to all-zero indicators.
	unknown := enc.TransformOne(Sample{Numeric: []float64{2, 20}, Categorical: []string{"zzz"}})
	if unknown[2] != 0 || unknown[3] != 0 {
		t.Errorf("unknown level indicators = %v, want [0 0]", unknown[2:])
	}
}

func TestEncoderOrdinal(t *testing.T) {
	samples := []Sample{
		{Numeric: []float64{1}, Categorical: []string{"x", "p"}},
		{Numeric: []float64{2}, Categorical: []string{"y", "p"}},
	}

	enc := &Encoder{Kind: EncodingOrdinal}
	enc.Fit(samples)

	row := enc.TransformOne(samples[1])
	want := []float64{2, 1, 0}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("TransformOne = %v, want %v", row, want)
		}
	}

	unknown := enc.TransformOne(Sample{Numeric: []float64{3}, Categorical: []string{"zzz", "p"}})
	if unknown[1] != -1 {
		t.Errorf("unknown level code = %v, want -1", unknown[1])
	}
}

func TestEncoderImputation(t *testing.T) {
	samples := []Sample{
		{Numeric: []float64{1}, Categorical: []string{"a"}},
		{Numeric: []float64{2}, Categorical: []string{"a"}},
		{Numeric: []float64{9}, Categorical: []string{"b"}},
		{Numeric: []float64{math.NaN()}, Categorical: []string{""}},
	}

	enc := &Encoder{Kind: EncodingOrdinal}
	enc.Fit(samples)

	// Median over finite values {1, 2, 9} is 2.
	if enc.NumMedians[0] != 2 {
		t.Errorf("NumMedians[0] = %v, want 2", enc.NumMedians[0])
	}

	row := enc.TransformOne(samples[3])
	if row[0] != 2 {
		t.Errorf("NaN imputed to %v, want 2", row[0])
	}
	// Empty category falls back to the most frequent level.
	if row[1] != 0 {
		t.Errorf("empty category code = %v, want 0 (mode %q)", row[1], enc.CatModes[0])
	}
}

func TestStratifiedSplit(t *testing.T) {
	y := make([]int, 100)
	for i := 60; i < 100; i++ {
		y[i] = 1
	}

	train, test := StratifiedSplit(y, 0.2, 42)

	if len(train)+len(test) != 100 {
		t.Fatalf("split sizes %d+%d, want 100 total", len(train), len(test))
	}

	count := func(indices []int, label int) int {
		n := 0
		for _, i := range indices {
			if y[i] == label {
				n++
			}
		}
		return n
	}

	if got := count(test, 0); got != 12 {
		t.Errorf("class 0 test count = %d, want 12", got)
	}
	if got := count(test, 1); got != 8 {
		t.Errorf("class 1 test count = %d, want 8", got)
	}

	seen := make(map[int]bool)
	for _, i := range append(append([]int(nil), train...), test...) {
		if seen[i] {
			t.Fatalf("index %d appears twice", i)
		}
		seen[i] = true
	}
}

func TestStratifiedSplitSingleton(t *testing.T) {
	// A single-member class stays in training.
	y := []int{0, 0, 0, 0, 1}
	train, test := StratifiedSplit(y, 0.5, 1)

	for _, i := range test {
		if y[i] == 1 {
			t.Fatal("singleton class leaked into the test set")
		}
	}
	found := false
	for _, i := range train {
		if y[i] == 1 {
			found = true
		}
	}
	if !found {
		t.Fatal("singleton class missing from the training set")
	}
}
