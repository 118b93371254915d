package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/drift"
	"github.com/opensource-finance/kestrel/internal/modelstore"
)

type fakeRepo struct {
	labeled []domain.ScoredTransaction
}

func (f *fakeRepo) FetchTransactions(ctx context.Context, limit int64) ([]domain.Transaction, error) {
	return nil, nil
}

func (f *fakeRepo) ReplaceLabeled(ctx context.Context, rows []domain.ScoredTransaction) error {
	f.labeled = rows
	return nil
}

func (f *fakeRepo) CountLabeled(ctx context.Context) (int64, error) {
	return int64(len(f.labeled)), nil
}

func (f *fakeRepo) CountLabeledAfter(ctx context.Context, rowID int64) (int64, error) {
	n := int64(0)
	for i := range f.labeled {
		if f.labeled[i].RowID > rowID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) MaxLabeledRowID(ctx context.Context) (int64, error) {
	max := int64(0)
	for i := range f.labeled {
		if f.labeled[i].RowID > max {
			max = f.labeled[i].RowID
		}
	}
	return max, nil
}

func (f *fakeRepo) LabeledAfter(ctx context.Context, rowID, limit int64) ([]domain.ScoredTransaction, error) {
	var out []domain.ScoredTransaction
	for i := range f.labeled {
		if f.labeled[i].RowID > rowID {
			out = append(out, f.labeled[i])
		}
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) LabeledUpTo(ctx context.Context, rowID, limit int64) ([]domain.ScoredTransaction, error) {
	var out []domain.ScoredTransaction
	for i := len(f.labeled) - 1; i >= 0; i-- {
		if f.labeled[i].RowID <= rowID {
			out = append(out, f.labeled[i])
		}
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) RecentLabeled(ctx context.Context, limit int64) ([]domain.ScoredTransaction, error) {
	var out []domain.ScoredTransaction
	for i := len(f.labeled) - 1; i >= 0; i-- {
		out = append(out, f.labeled[i])
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) CustomerStats(ctx context.Context, customerID string) (*domain.CustomerAggregate, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeRepo) Ping(ctx context.Context) error { return nil }
func (f *fakeRepo) Close() error                   { return nil }

type failingStore struct{}

func (failingStore) Save(ctx context.Context, v *domain.ModelVersion, artifact []byte) (string, error) {
	return "", fmt.Errorf("store unavailable")
}

func (failingStore) Load(ctx context.Context, path string) ([]byte, error) {
	return nil, domain.ErrNotFound
}

func (failingStore) List(ctx context.Context, target string) ([]*domain.ModelVersion, error) {
	return nil, nil
}

func (failingStore) Latest(ctx context.Context, target string) (*domain.ModelVersion, error) {
	return nil, domain.ErrNotFound
}

// labeledBatch builds a separable labeled set: even rows are low-risk
// simple, odd rows are high-risk hard, with scores that make either
// target learnable.
func labeledBatch(n int) []domain.ScoredTransaction {
	rows := make([]domain.ScoredTransaction, 0, n)
	for i := 0; i < n; i++ {
		var tx domain.ScoredTransaction
		tx.RowID = int64(i + 1)
		tx.CustomerID = fmt.Sprintf("c%d", i%5)
		tx.CategoryCode = 5411
		tx.TypeCode = 1000
		tx.Hour = 12
		if i%2 == 0 {
			tx.Amount = -50
			tx.AmountAbs = 50
			tx.Flow = domain.FlowSpend
			tx.RuleScore = 5
			tx.AnomalyScore = 10
			tx.RiskScore = 7
			tx.RiskLevel = domain.RiskLow
			tx.Complexity = domain.ComplexitySimple
		} else {
			tx.Amount = -180_000
			tx.AmountAbs = 180_000
			tx.Flow = domain.FlowSpend
			tx.RuleScore = 90
			tx.AnomalyScore = 80
			tx.RiskScore = 86
			tx.RiskLevel = domain.RiskHigh
			tx.Complexity = domain.ComplexityHard
		}
		rows = append(rows, tx)
	}
	return rows
}

func testConfig() domain.TrainingConfig {
	return domain.TrainingConfig{
		MinNewRows:    10,
		MaxTrainRows:  1000,
		ReferenceRows: 100,
		TestFraction:  0.25,
		Seed:          42,
		Candidates:    []string{"logreg", "forest", "boosted"},
	}
}

func testOrchestrator(t *testing.T, repo domain.Repository, store domain.ModelStore, cfg domain.TrainingConfig) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	monitor := drift.NewMonitor(domain.DefaultConfig().Drift)
	o := NewOrchestrator(repo, store, nil, monitor,
		NewStateStore(filepath.Join(dir, "training_state.json")),
		NewTrainingLog(filepath.Join(dir, "training_log.csv")),
		cfg, slog.Default())
	return o, dir
}

func TestOrchestratorSkipsBelowThreshold(t *testing.T) {
	repo := &fakeRepo{labeled: labeledBatch(5)}
	store, err := modelstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	o, dir := testOrchestrator(t, repo, store, testConfig())

	result, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Skipped {
		t.Error("run should have been skipped")
	}
	if result.NewRows != 5 {
		t.Errorf("NewRows = %d, want 5", result.NewRows)
	}

	if _, err := os.Stat(filepath.Join(dir, "training_state.json")); !os.IsNotExist(err) {
		t.Error("skipped run must not write the state file")
	}
	if _, err := os.Stat(filepath.Join(dir, "training_log.csv")); !os.IsNotExist(err) {
		t.Error("skipped run must not write the training log")
	}
}

func TestOrchestratorFullRun(t *testing.T) {
	repo := &fakeRepo{labeled: labeledBatch(80)}
	store, err := modelstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	o, dir := testOrchestrator(t, repo, store, testConfig())
	ctx := context.Background()

	result, err := o.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Skipped {
		t.Fatal("run skipped unexpectedly")
	}
	if result.TrainedRows != 80 {
		t.Errorf("TrainedRows = %d, want 80", result.TrainedRows)
	}
	if !strings.HasPrefix(result.Version, "v_") {
		t.Errorf("Version = %q, want v_ prefix", result.Version)
	}

	for _, target := range []string{domain.TargetRiskLevel, domain.TargetComplexity} {
		mv := result.Models[target]
		if mv == nil {
			t.Fatalf("no model versioned for %s", target)
		}
		if mv.Metrics.F1Macro < 0.9 {
			t.Errorf("%s F1 = %v, want >= 0.9 on separable data", target, mv.Metrics.F1Macro)
		}
		latest, err := store.Latest(ctx, target)
		if err != nil {
			t.Fatalf("Latest(%s): %v", target, err)
		}
		if latest.Version != result.Version {
			t.Errorf("stored version = %s, want %s", latest.Version, result.Version)
		}
	}

	state, err := NewStateStore(filepath.Join(dir, "training_state.json")).Load()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state.LastRowID != 80 {
		t.Errorf("LastRowID = %d, want 80", state.LastRowID)
	}
	if state.LastTrainTime == "" {
		t.Error("LastTrainTime not set")
	}

	logData, err := os.ReadFile(filepath.Join(dir, "training_log.csv"))
	if err != nil {
		t.Fatalf("read training log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(logData)), "\n")
	if len(lines) != 2 {
		t.Fatalf("training log has %d lines, want header plus one row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "timestamp,version,") {
		t.Errorf("log header = %q", lines[0])
	}

	// With no new rows past the watermark the next run skips.
	again, err := o.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !again.Skipped {
		t.Error("second run should skip, watermark already current")
	}
}

// All candidates reach perfect F1 on separable data, so selection falls
// back to roster order.
func TestOrchestratorTieBreakRosterOrder(t *testing.T) {
	repo := &fakeRepo{labeled: labeledBatch(60)}
	store, err := modelstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	cfg := testConfig()
	cfg.Candidates = []string{"boosted", "logreg", "forest"}
	o, _ := testOrchestrator(t, repo, store, cfg)

	result, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	risk := result.Models[domain.TargetRiskLevel]
	if risk.Metrics.F1Macro == 1.0 && risk.ModelName != "boosted" {
		t.Errorf("tie broken to %q, want first roster entry boosted", risk.ModelName)
	}
}

func TestOrchestratorFailureLeavesState(t *testing.T) {
	repo := &fakeRepo{labeled: labeledBatch(60)}
	o, dir := testOrchestrator(t, repo, failingStore{}, testConfig())

	if _, err := o.Run(context.Background()); err == nil {
		t.Fatal("expected error from failing model store")
	}

	if _, err := os.Stat(filepath.Join(dir, "training_state.json")); !os.IsNotExist(err) {
		t.Error("failed run must not write the state file")
	}
	if _, err := os.Stat(filepath.Join(dir, "training_log.csv")); !os.IsNotExist(err) {
		t.Error("failed run must not write the training log")
	}
}

func TestStateStoreMissingFile(t *testing.T) {
	s := NewStateStore(filepath.Join(t.TempDir(), "nope", "state.json"))
	state, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state.LastRowID != 0 || state.LastTrainTime != "" {
		t.Errorf("zero state = %+v", state)
	}

	state.LastRowID = 42
	state.LastTrainTime = "20260829_120000"
	if err := s.Save(state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reloaded, err := s.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded != state {
		t.Errorf("reloaded = %+v, want %+v", reloaded, state)
	}
}

func TestCandidatesEmptyRoster(t *testing.T) {
	_, err := trainAndSelect(domain.TargetRiskLevel, nil, 1, nil, nil, nil, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty roster error = %v, want ErrInvalidInput", err)
	}
}
