package label

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type fakeRepo struct {
	source   []domain.Transaction
	labeled  []domain.ScoredTransaction
	fetchErr error
	storeErr error
}

func (f *fakeRepo) FetchTransactions(ctx context.Context, limit int64) ([]domain.Transaction, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if limit > 0 && int64(len(f.source)) > limit {
		return f.source[:limit], nil
	}
	return f.source, nil
}

func (f *fakeRepo) ReplaceLabeled(ctx context.Context, rows []domain.ScoredTransaction) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.labeled = append([]domain.ScoredTransaction(nil), rows...)
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

type recordingBus struct {
	topics   []string
	payloads [][]byte
}

func (b *recordingBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.topics = append(b.topics, topic)
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	return nil, nil
}

func (b *recordingBus) Ping(ctx context.Context) error { return nil }
func (b *recordingBus) Close() error                   { return nil }

func testPipeline(t *testing.T, repo *fakeRepo, bus domain.EventBus) *Pipeline {
	t.Helper()
	cfg := domain.DefaultConfig()
	p, err := NewPipeline(repo, bus, cfg.Labeling, cfg.Anomaly, slog.Default())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func sourceBatch(n int) []domain.Transaction {
	rows := make([]domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, domain.Transaction{
			RowID:        int64(i + 1),
			CustomerID:   fmt.Sprintf("c%d", i%7),
			OccurredAt:   fmt.Sprintf("%d 14:30:00", i),
			CategoryCode: 5411,
			TypeCode:     1000,
			Amount:       -100 - float64(i),
		})
	}
	return rows
}

func TestPipelineRun(t *testing.T) {
	repo := &fakeRepo{source: sourceBatch(50)}
	bus := &recordingBus{}
	p := testPipeline(t, repo, bus)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Rows != 50 {
		t.Errorf("Rows = %d, want 50", result.Rows)
	}
	if len(repo.labeled) != 50 {
		t.Fatalf("labeled rows = %d, want 50", len(repo.labeled))
	}
	if result.MaxRowID != 50 {
		t.Errorf("MaxRowID = %d, want 50", result.MaxRowID)
	}

	total := 0
	for _, n := range result.ByLevel {
		total += n
	}
	if total != 50 {
		t.Errorf("ByLevel sums to %d, want 50", total)
	}

	for i := range repo.labeled {
		tx := repo.labeled[i]
		if tx.RiskScore < 0 || tx.RiskScore > 100 {
			t.Fatalf("row %d risk score %v out of bounds", i, tx.RiskScore)
		}
		if tx.RiskLevel == "" || tx.Complexity == "" {
			t.Fatalf("row %d missing labels: %+v", i, tx)
		}
	}

	if len(bus.topics) != 1 || bus.topics[0] != domain.TopicLabelingCompleted {
		t.Fatalf("published topics = %v", bus.topics)
	}
	var published Result
	if err := json.Unmarshal(bus.payloads[0], &published); err != nil {
		t.Fatalf("unmarshal event payload: %v", err)
	}
	if published.Rows != 50 {
		t.Errorf("event Rows = %d, want 50", published.Rows)
	}
}

// A night-time, large-amount, risk-category transaction from a
// high-frequency customer maxes the rule score and lands in the high
// band with a simple verification tag.
func TestPipelineExtremeTransaction(t *testing.T) {
	source := sourceBatch(250)
	for i := range source {
		source[i].CustomerID = "whale"
	}
	source = append(source, domain.Transaction{
		RowID:        9999,
		CustomerID:   "whale",
		OccurredAt:   "42 03:10:00",
		CategoryCode: 6011,
		TypeCode:     2000,
		Amount:       -200_000,
	})

	repo := &fakeRepo{source: source}
	p := testPipeline(t, repo, nil)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var target *domain.ScoredTransaction
	for i := range repo.labeled {
		if repo.labeled[i].RowID == 9999 {
			target = &repo.labeled[i]
		}
	}
	if target == nil {
		t.Fatal("extreme transaction missing from labeled output")
	}

	if target.RuleScore != 100 {
		t.Errorf("RuleScore = %v, want 100", target.RuleScore)
	}
	if target.RiskLevel != domain.RiskHigh {
		t.Errorf("RiskLevel = %q, want high", target.RiskLevel)
	}
	if target.Complexity != domain.ComplexitySimple {
		t.Errorf("Complexity = %q, want simple", target.Complexity)
	}
}

func TestPipelineEmptySource(t *testing.T) {
	repo := &fakeRepo{}
	bus := &recordingBus{}
	p := testPipeline(t, repo, bus)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Rows != 0 {
		t.Errorf("Rows = %d, want 0", result.Rows)
	}
	if repo.labeled != nil {
		t.Error("labeled table written for an empty source")
	}
	if len(bus.topics) != 0 {
		t.Errorf("events published for an empty run: %v", bus.topics)
	}
}

func TestPipelineStoreFailure(t *testing.T) {
	repo := &fakeRepo{source: sourceBatch(10), storeErr: fmt.Errorf("disk full")}
	p := testPipeline(t, repo, nil)

	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("expected error when the labeled table cannot be written")
	}
}
