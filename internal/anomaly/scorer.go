// Package anomaly fits an unsupervised outlier model per labeling run and
// maps its decisions to a normalized 0-100 anomaly score.
package anomaly

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// FeatureNames is the fixed numeric feature vector fitted per run.
var FeatureNames = []string{
	"amount_abs",
	"hour",
	"cust_tx_cnt",
	"cust_amount_mean",
	"cust_amount_std",
	"cust_category_cnt",
	"is_night",
}

// Scorer fits one isolation forest over a batch and rescales its decision
// values to [0,100], where the most anomalous row in the batch scores 100.
type Scorer struct {
	cfg domain.AnomalyConfig
}

// NewScorer creates an anomaly scorer.
func NewScorer(cfg domain.AnomalyConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// ScoreAll fits a fresh model over the batch and returns per-row scores.
func (s *Scorer) ScoreAll(rows []domain.PreparedTransaction) []float64 {
	if len(rows) == 0 {
		return nil
	}

	x := FeatureMatrix(rows)

	scaler := &StandardScaler{}
	scaled := scaler.FitTransform(x)

	forest := NewIsolationForest(scaled, s.cfg.Trees, s.cfg.SampleSize, s.cfg.Contamination, s.cfg.Seed)
	raw := forest.DecisionValues(scaled)

	return Rescale(raw)
}

// FeatureMatrix builds the fixed numeric feature vector per row.
// Non-finite values are replaced with zero; the missing-hour sentinel is
// kept as-is so unparseable timestamps remain distinguishable.
func FeatureMatrix(rows []domain.PreparedTransaction) [][]float64 {
	x := make([][]float64, len(rows))
	for i, row := range rows {
		night := 0.0
		if row.IsNight {
			night = 1.0
		}
		x[i] = []float64{
			finite(row.AmountAbs),
			float64(row.Hour),
			float64(row.Aggregate.TxCount),
			finite(row.Aggregate.AmountMean),
			finite(row.Aggregate.AmountStd),
			float64(row.Aggregate.CategoryCount),
			night,
		}
	}
	return x
}

// Rescale maps raw decision values (lower = more anomalous) onto [0,100]
// per batch: the most anomalous row scores 100, the least near 0. The
// denominator is clamped away from zero for degenerate batches.
func Rescale(raw []float64) []float64 {
	if len(raw) == 0 {
		return nil
	}

	lo, hi := raw[0], raw[0]
	for _, v := range raw {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	denom := hi - lo
	if denom < 1e-9 {
		denom = 1e-9
	}

	out := make([]float64, len(raw))
	for i, v := range raw {
		score := (hi - v) / denom * 100
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		out[i] = score
	}
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
