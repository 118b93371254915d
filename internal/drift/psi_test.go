package drift

import (
	"math"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestPSIIdenticalDistributions(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	v := make([]float64, 1000)
	for i := range v {
		v[i] = rng.NormFloat64()
	}

	if got := PSI(v, v, 10); math.Abs(got) > 1e-9 {
		t.Errorf("PSI of a distribution against itself = %v, want 0", got)
	}
}

func TestPSIEmptyInputs(t *testing.T) {
	v := []float64{1, 2, 3}

	if got := PSI(nil, v, 10); got != 0.0 {
		t.Errorf("empty reference: got %v, want exactly 0.0", got)
	}
	if got := PSI(v, nil, 10); got != 0.0 {
		t.Errorf("empty actual: got %v, want exactly 0.0", got)
	}
	if got := PSI(nil, nil, 10); got != 0.0 {
		t.Errorf("both empty: got %v, want exactly 0.0", got)
	}
}

func TestPSIDegenerateReference(t *testing.T) {
	// 50 identical values collapse to a single cut point.
	ones := make([]float64, 50)
	for i := range ones {
		ones[i] = 1
	}

	if got := PSI(ones, ones, 10); got != 0.0 {
		t.Errorf("constant reference: got %v, want exactly 0.0", got)
	}

	// Two distinct values still yield fewer than 3 cuts only when the
	// quantile grid collapses; verify no panic and a finite result.
	twos := append(append([]float64{}, ones...), 2)
	if got := PSI(twos, twos, 10); math.IsNaN(got) || math.IsInf(got, 0) {
		t.Errorf("near-degenerate reference produced non-finite PSI: %v", got)
	}
}

func TestPSIDetectsShift(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	ref := make([]float64, 2000)
	shifted := make([]float64, 2000)
	for i := range ref {
		ref[i] = rng.NormFloat64()
		shifted[i] = rng.NormFloat64() + 2.0
	}

	same := PSI(ref, ref, 10)
	moved := PSI(ref, shifted, 10)

	if moved <= same {
		t.Errorf("shifted distribution should drift more: same=%v shifted=%v", same, moved)
	}
	if moved < 0.2 {
		t.Errorf("two-sigma shift should exceed the conventional 0.2 threshold, got %v", moved)
	}
}

func TestPSINonNegativeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	properties.Property("PSI is non-negative", prop.ForAll(
		func(ref []float64, act []float64) bool {
			return PSI(ref, act, 10) >= 0
		},
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
	))
	properties.TestingRun(t)
}

func TestMonitorReport(t *testing.T) {
	monitor := NewMonitor(domain.DriftConfig{
		Features:  []string{"amount", "risk_score"},
		Bins:      10,
		Threshold: 0.2,
	})

	rng := rand.New(rand.NewSource(3))
	makeRows := func(amountShift float64) []domain.ScoredTransaction {
		rows := make([]domain.ScoredTransaction, 500)
		for i := range rows {
			rows[i] = domain.ScoredTransaction{
				PreparedTransaction: domain.PreparedTransaction{
					Transaction: domain.Transaction{Amount: rng.NormFloat64()*100 + amountShift},
				},
				RiskScore: 50,
			}
		}
		return rows
	}

	report := monitor.Compare(makeRows(0), makeRows(0))
	if report.Exceeded {
		t.Errorf("same-shape slices should not exceed threshold: %+v", report)
	}
	if len(report.PerFeature) != 2 {
		t.Errorf("expected 2 features in report, got %d", len(report.PerFeature))
	}

	report = monitor.Compare(makeRows(0), makeRows(1000))
	if !report.Exceeded {
		t.Errorf("large shift should exceed threshold: max=%v", report.Max)
	}
	if report.Max < report.Mean {
		t.Errorf("max %v should be >= mean %v", report.Max, report.Mean)
	}
}

// Scenario: 50 identical reference values against an identical new slice.
func TestMonitorIdenticalConstantSlices(t *testing.T) {
	monitor := NewMonitor(domain.DriftConfig{Features: []string{"amount"}, Bins: 10, Threshold: 0.2})

	rows := make([]domain.ScoredTransaction, 50)
	for i := range rows {
		rows[i] = domain.ScoredTransaction{
			PreparedTransaction: domain.PreparedTransaction{
				Transaction: domain.Transaction{Amount: 1},
			},
		}
	}

	report := monitor.Compare(rows, rows)
	if report.PerFeature["amount"] != 0.0 {
		t.Errorf("identical constant slices: got %v, want exactly 0.0", report.PerFeature["amount"])
	}
	if report.Exceeded {
		t.Error("identical slices must not flag drift")
	}
}
