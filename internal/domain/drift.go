package domain

// DriftReport compares a reference slice against newly arrived rows.
// Produced once per retraining decision; logged, not persisted.
type DriftReport struct {
	// PerFeature maps feature name to its PSI value.
	PerFeature map[string]float64 `json:"perFeature"`

	Mean float64 `json:"psiMean"`
	Max  float64 `json:"psiMax"`

	// Threshold is the configured advisory PSI threshold.
	Threshold float64 `json:"threshold"`

	// Exceeded is true when Max >= Threshold. Advisory only: it does not
	// block or force retraining on its own.
	Exceeded bool `json:"exceeded"`
}
