package domain

import (
	"context"
	"time"
)

// Prediction targets. Each target gets its own versioned artifact.
const (
	TargetRiskLevel  = "risk_level"
	TargetComplexity = "verification_complexity"
)

// ModelMetrics are the held-out evaluation metrics for one candidate.
type ModelMetrics struct {
	Accuracy    float64 `json:"accuracy"`
	RecallMacro float64 `json:"recallMacro"`
	F1Macro     float64 `json:"f1Macro"`
}

// ModelVersion describes one persisted, immutable classifier artifact.
type ModelVersion struct {
	// Version is the timestamp-derived identifier, e.g. "v_20260829_140502".
	Version string `json:"version"`

	// Target is TargetRiskLevel or TargetComplexity.
	Target string `json:"target"`

	// ModelName is the winning candidate, e.g. "logreg", "forest", "boosted".
	ModelName string `json:"modelName"`

	Metrics ModelMetrics `json:"metrics"`

	TrainedAt time.Time `json:"trainedAt"`

	// ArtifactPath locates the serialized pipeline in the model store.
	ArtifactPath string `json:"artifactPath"`
}

// TrainingState is the single mutable watermark record. It is rewritten
// exactly once per successful orchestrator run.
type TrainingState struct {
	LastRowID     int64  `json:"last_rowid"`
	LastTrainTime string `json:"last_train_time,omitempty"`
}

// ModelStore persists and retrieves versioned model artifacts.
// Artifacts are opaque blobs; versions are append-only and immutable.
type ModelStore interface {
	// Save writes an artifact and returns its storage path.
	Save(ctx context.Context, version *ModelVersion, artifact []byte) (string, error)

	// Load reads an artifact by its storage path.
	Load(ctx context.Context, path string) ([]byte, error)

	// List returns known versions for a target, oldest first.
	List(ctx context.Context, target string) ([]*ModelVersion, error)

	// Latest returns the most recent version for a target.
	// Returns ErrNotFound when no version exists.
	Latest(ctx context.Context, target string) (*ModelVersion, error)
}

// ModelStoreConfig holds configuration for the model store.
type ModelStoreConfig struct {
	// Backend is "local" or "s3".
	Backend string

	// Root is the local storage root. Versioned artifacts live under
	// Root/versions, the training log and state file directly under Root.
	Root string

	// S3 settings.
	S3Bucket string
	S3Prefix string
	S3Region string
}
