package domain

// Transaction is a raw row pulled from the source table.
// Amount is signed: negative = spend, positive = income.
type Transaction struct {
	// RowID is the source row identifier (sqlite rowid or bigserial).
	RowID int64 `json:"rowId,omitempty"`

	CustomerID string `json:"customerId"`

	// OccurredAt is the composite datetime-like string from the source,
	// e.g. "153 10:23:45". Parsed leniently, never rejected.
	OccurredAt string `json:"occurredAt"`

	// CategoryCode is the merchant category (MCC-style) code.
	CategoryCode int64 `json:"categoryCode"`

	// TypeCode is the transaction type code.
	TypeCode int64 `json:"typeCode"`

	Amount float64 `json:"amount"`
}

// MissingHour is the sentinel for an unparseable hour.
const MissingHour = -1

// CustomerAggregate holds per-customer behavior derived from one batch.
// Recomputed fresh each labeling run, never persisted on its own.
type CustomerAggregate struct {
	TxCount       int64   `json:"txCount"`
	AmountMean    float64 `json:"amountMean"`
	AmountStd     float64 `json:"amountStd"`
	AmountSum     float64 `json:"amountSum"`
	CategoryCount int64   `json:"categoryCount"`
}

// PreparedTransaction is a Transaction augmented with derived features.
type PreparedTransaction struct {
	Transaction

	// Hour is 0-23, or MissingHour when the timestamp could not be parsed.
	Hour int `json:"hour"`

	AmountAbs float64 `json:"amountAbs"`

	// Flow is "spend", "income" or "zero" depending on the amount sign.
	Flow string `json:"flow"`

	// IsNight is true for hour in [0,5].
	IsNight bool `json:"isNight"`

	Aggregate CustomerAggregate `json:"aggregate"`
}

// Flow values.
const (
	FlowSpend  = "spend"
	FlowIncome = "income"
	FlowZero   = "zero"
)

// Risk levels, ordered low < medium < high.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Verification complexity tags.
const (
	ComplexitySimple = "simple"
	ComplexityMedium = "medium"
	ComplexityHard   = "hard"
)

// ScoredTransaction is the labeled output row. One labeling pass creates
// these and replaces the labeled table wholesale.
type ScoredTransaction struct {
	PreparedTransaction

	RuleScore    float64 `json:"ruleScore"`    // [0,100]
	AnomalyScore float64 `json:"anomalyScore"` // [0,100]
	RiskScore    float64 `json:"riskScore"`    // [0,100]

	RiskLevel  string `json:"riskLevel"`
	Complexity string `json:"verificationComplexity"`
}
