package train

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// logColumns is the fixed CSV schema of the training log, one row per
// completed run.
var logColumns = []string{
	"timestamp",
	"version",
	"trained_rows",
	"new_rows_detected",
	"drift_psi_mean",
	"drift_psi_max",
	"drift_flag",
	"risk_model",
	"risk_accuracy",
	"risk_recall_macro",
	"risk_f1_macro",
	"cx_model",
	"cx_accuracy",
	"cx_recall_macro",
	"cx_f1_macro",
	"risk_model_path",
	"cx_model_path",
}

// LogEntry is one training-log row.
type LogEntry struct {
	Timestamp   string
	Version     string
	TrainedRows int
	NewRows     int64
	Drift       *domain.DriftReport
	Risk        *domain.ModelVersion
	Complexity  *domain.ModelVersion
}

// TrainingLog appends run summaries to a CSV file, writing the header
// when the file is first created.
type TrainingLog struct {
	path string
}

// NewTrainingLog creates a log writer for the given file path.
func NewTrainingLog(path string) *TrainingLog {
	return &TrainingLog{path: path}
}

// Append writes one row, creating the file and header as needed.
func (l *TrainingLog) Append(entry LogEntry) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	_, statErr := os.Stat(l.path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open training log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(logColumns); err != nil {
			return fmt.Errorf("write log header: %w", err)
		}
	}

	flag := "0"
	if entry.Drift != nil && entry.Drift.Exceeded {
		flag = "1"
	}
	var mean, max float64
	if entry.Drift != nil {
		mean, max = entry.Drift.Mean, entry.Drift.Max
	}

	row := []string{
		entry.Timestamp,
		entry.Version,
		strconv.Itoa(entry.TrainedRows),
		strconv.FormatInt(entry.NewRows, 10),
		formatMetric(mean),
		formatMetric(max),
		flag,
		entry.Risk.ModelName,
		formatMetric(entry.Risk.Metrics.Accuracy),
		formatMetric(entry.Risk.Metrics.RecallMacro),
		formatMetric(entry.Risk.Metrics.F1Macro),
		entry.Complexity.ModelName,
		formatMetric(entry.Complexity.Metrics.Accuracy),
		formatMetric(entry.Complexity.Metrics.RecallMacro),
		formatMetric(entry.Complexity.Metrics.F1Macro),
		entry.Risk.ArtifactPath,
		entry.Complexity.ArtifactPath,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write log row: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush training log: %w", err)
	}
	return nil
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
