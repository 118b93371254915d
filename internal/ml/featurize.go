package ml

import (
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SupervisedNumeric names the numeric feature columns fed to the
// supervised candidates, in order.
var SupervisedNumeric = []string{
	"amount",
	"amount_abs",
	"hour",
	"is_night",
	"rule_score",
	"anomaly_score",
	"risk_score",
	"cust_tx_cnt",
	"cust_amount_mean",
	"cust_amount_std",
	"cust_category_cnt",
}

// SupervisedCategorical names the categorical feature columns, in order.
var SupervisedCategorical = []string{"category", "tr_type", "flow"}

// SampleFromScored converts a labeled row into a training sample. The
// target columns themselves are never included.
func SampleFromScored(tx domain.ScoredTransaction) Sample {
	s := SampleFromPrepared(tx.PreparedTransaction)
	s.Numeric[4] = tx.RuleScore
	s.Numeric[5] = tx.AnomalyScore
	s.Numeric[6] = tx.RiskScore
	return s
}

// SampleFromPrepared converts a prepared row into a sample with the
// score columns zeroed. Serving fills in whatever scores it can
// recompute; missing ones stay at the default.
func SampleFromPrepared(tx domain.PreparedTransaction) Sample {
	night := 0.0
	if tx.IsNight {
		night = 1
	}
	return Sample{
		Numeric: []float64{
			tx.Amount,
			tx.AmountAbs,
			float64(tx.Hour),
			night,
			0, // rule_score
			0, // anomaly_score
			0, // risk_score
			float64(tx.Aggregate.TxCount),
			tx.Aggregate.AmountMean,
			tx.Aggregate.AmountStd,
			float64(tx.Aggregate.CategoryCount),
		},
		Categorical: []string{
			strconv.FormatInt(tx.CategoryCode, 10),
			strconv.FormatInt(tx.TypeCode, 10),
			tx.Flow,
		},
	}
}

// SetScores fills the score columns of a sample built from a prepared
// row.
func SetScores(s *Sample, ruleScore, anomalyScore, riskScore float64) {
	s.Numeric[4] = ruleScore
	s.Numeric[5] = anomalyScore
	s.Numeric[6] = riskScore
}

// TargetLabel extracts the configured target column from a labeled row.
func TargetLabel(tx domain.ScoredTransaction, target string) string {
	if target == domain.TargetComplexity {
		return tx.Complexity
	}
	return tx.RiskLevel
}
