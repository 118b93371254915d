package domain

import "time"

// Config holds the complete Kestrel configuration. Components receive the
// sub-config they need at construction; there is no ambient global state.
type Config struct {
	// Server settings (serving surface)
	Server ServerConfig `json:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	ModelStore ModelStoreConfig `json:"modelStore"`

	// Pipeline configurations
	Labeling LabelingConfig `json:"labeling"`
	Anomaly  AnomalyConfig  `json:"anomaly"`
	Drift    DriftConfig    `json:"drift"`
	Training TrainingConfig `json:"training"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds

	// APIKey is the shared secret compared against X-API-Key.
	// Empty disables authentication.
	APIKey string `json:"apiKey"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// BonusRule is an operator-defined CEL expression that contributes extra
// points to the rule score when it evaluates to true (or to a number).
type BonusRule struct {
	ID         string  `json:"id"`
	Expression string  `json:"expression"`
	Points     float64 `json:"points"`
}

// LabelingConfig holds the rule scorer and risk classifier tunables.
type LabelingConfig struct {
	// MaxRows caps the batch read from the source table. <= 0 means all.
	MaxRows int64 `json:"maxRows"`

	// MediumAmount and HighAmount are the suspicion thresholds on |amount|.
	MediumAmount float64 `json:"mediumAmount"`
	HighAmount   float64 `json:"highAmount"`

	// FrequencyThreshold is the per-customer batch transaction count above
	// which the frequency contribution fires.
	FrequencyThreshold int64 `json:"frequencyThreshold"`

	// RiskCategories is the set of category codes treated as risky.
	RiskCategories []int64 `json:"riskCategories"`

	// Blend weights for the final risk score.
	RuleWeight    float64 `json:"ruleWeight"`
	AnomalyWeight float64 `json:"anomalyWeight"`

	// Risk level cutoffs, boundary inclusive on the upper side:
	// score >= HighCutoff -> high, >= MediumCutoff -> medium, else low.
	MediumCutoff float64 `json:"mediumCutoff"`
	HighCutoff   float64 `json:"highCutoff"`

	// BonusRules are optional CEL expressions adding points before clipping.
	BonusRules []BonusRule `json:"bonusRules,omitempty"`
}

// RiskCategorySet returns the risk categories as a lookup set.
func (c LabelingConfig) RiskCategorySet() map[int64]bool {
	set := make(map[int64]bool, len(c.RiskCategories))
	for _, code := range c.RiskCategories {
		set[code] = true
	}
	return set
}

// AnomalyConfig holds isolation forest tunables.
type AnomalyConfig struct {
	// Contamination is the expected fraction of anomalous rows.
	Contamination float64 `json:"contamination"`

	// Trees is the ensemble size.
	Trees int `json:"trees"`

	// SampleSize is the per-tree subsample size.
	SampleSize int `json:"sampleSize"`

	// Seed makes fits reproducible.
	Seed int64 `json:"seed"`
}

// DriftConfig holds PSI drift monitoring settings.
type DriftConfig struct {
	// Features are the numeric feature names compared between slices.
	Features []string `json:"features"`

	// Bins is the equal-frequency bin count over the reference.
	Bins int `json:"bins"`

	// Threshold is the advisory PSI threshold on the per-feature max.
	Threshold float64 `json:"threshold"`
}

// TrainingConfig holds retraining orchestrator settings.
type TrainingConfig struct {
	// MinNewRows is the minimum new-row delta required to retrain.
	MinNewRows int64 `json:"minNewRows"`

	// MaxTrainRows caps the recent-window training set.
	MaxTrainRows int64 `json:"maxTrainRows"`

	// ReferenceRows caps the reference slice used for drift comparison.
	ReferenceRows int64 `json:"referenceRows"`

	// TestFraction is the held-out split fraction.
	TestFraction float64 `json:"testFraction"`

	// Seed makes splits and fits reproducible.
	Seed int64 `json:"seed"`

	// Candidates is the model roster in tie-break order.
	Candidates []string `json:"candidates"`

	// StatePath locates the watermark state file.
	StatePath string `json:"statePath"`

	// LogPath locates the append-only training log CSV.
	LogPath string `json:"logPath"`
}

// DefaultConfig returns the reference configuration: sqlite storage,
// in-memory cache, channel bus, local model store.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:       "sqlite",
			SQLitePath:   "./kestrel.db",
			SourceTable:  "transactions",
			LabeledTable: "transactions_labeled",
			Columns: ColumnMap{
				CustomerID: "customer_id",
				OccurredAt: "tr_datetime",
				Category:   "mcc_code",
				Type:       "tr_type",
				Amount:     "amount",
			},
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		ModelStore: ModelStoreConfig{
			Backend: "local",
			Root:    "./models",
		},
		Labeling: LabelingConfig{
			MaxRows:            2_000_000,
			MediumAmount:       50_000,
			HighAmount:         150_000,
			FrequencyThreshold: 200,
			RiskCategories:     []int64{6011, 4829, 5541},
			RuleWeight:         0.6,
			AnomalyWeight:      0.4,
			MediumCutoff:       35,
			HighCutoff:         70,
		},
		Anomaly: AnomalyConfig{
			Contamination: 0.02,
			Trees:         200,
			SampleSize:    256,
			Seed:          42,
		},
		Drift: DriftConfig{
			Features:  []string{"amount", "hour", "rule_score", "anomaly_score", "risk_score"},
			Bins:      10,
			Threshold: 0.2,
		},
		Training: TrainingConfig{
			MinNewRows:    10_000,
			MaxTrainRows:  300_000,
			ReferenceRows: 100_000,
			TestFraction:  0.2,
			Seed:          42,
			Candidates:    []string{"logreg", "forest", "boosted"},
			StatePath:     "./training_state.json",
			LogPath:       "./training_log.csv",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}
