// Benchmark tool for the labeling and retraining pipelines.
//
// Usage:
//
//	go run cmd/benchmark/main.go -rows 100000 -customers 2000 -train
//
// This tool:
//  1. Generates synthetic transactions into a throwaway sqlite database
//  2. Times one full labeling run (features, rules, isolation forest)
//  3. Optionally times one retraining run over the fresh labels
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/drift"
	"github.com/opensource-finance/kestrel/internal/label"
	"github.com/opensource-finance/kestrel/internal/modelstore"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/train"
)

var mccCodes = []int64{5411, 5541, 5812, 4814, 6011, 4829, 5912, 5999, 7011}

var trTypes = []int64{1000, 1010, 1030, 2000, 2010, 7010, 7070}

func main() {
	rows := flag.Int("rows", 100_000, "Synthetic transactions to generate")
	customers := flag.Int("customers", 2000, "Distinct customers")
	seed := flag.Int64("seed", 1, "Generator seed")
	dbPath := flag.String("db", "", "SQLite path (default: temp file, removed on exit)")
	runTrain := flag.Bool("train", false, "Also benchmark one retraining run")
	verbose := flag.Bool("verbose", false, "Structured logs from the pipelines")
	flag.Parse()

	if !*verbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	}

	fmt.Println("kestrel pipeline benchmark")
	fmt.Printf("  rows:      %d\n", *rows)
	fmt.Printf("  customers: %d\n", *customers)
	fmt.Printf("  seed:      %d\n", *seed)
	fmt.Println()

	path := *dbPath
	if path == "" {
		dir, err := os.MkdirTemp("", "kestrel-benchmark-*")
		if err != nil {
			fatal("create temp dir: %v", err)
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, "benchmark.db")
	}

	cfg := domain.DefaultConfig()
	cfg.Repository.SQLitePath = path

	repoIface, err := repository.New(cfg.Repository)
	if err != nil {
		fatal("initialize repository: %v", err)
	}
	defer repoIface.Close()
	repo := repoIface.(*repository.SQLRepository)

	ctx := context.Background()

	// 1. Seed
	start := time.Now()
	rng := rand.New(rand.NewSource(*seed))
	const batch = 10_000
	for offset := 0; offset < *rows; offset += batch {
		n := batch
		if offset+n > *rows {
			n = *rows - offset
		}
		if err := repo.SeedSource(ctx, generate(rng, n, *customers)); err != nil {
			fatal("seed source table: %v", err)
		}
	}
	seedDur := time.Since(start)
	fmt.Printf("seeded    %8d rows in %8s (%.0f rows/s)\n",
		*rows, seedDur.Round(time.Millisecond), float64(*rows)/seedDur.Seconds())

	eventBus := bus.NewChannelBus(16)
	defer eventBus.Close()

	// 2. Label
	pipeline, err := label.NewPipeline(repo, eventBus, cfg.Labeling, cfg.Anomaly, slog.Default())
	if err != nil {
		fatal("initialize labeling pipeline: %v", err)
	}

	start = time.Now()
	result, err := pipeline.Run(ctx)
	if err != nil {
		fatal("labeling run: %v", err)
	}
	labelDur := time.Since(start)
	fmt.Printf("labeled   %8d rows in %8s (%.0f rows/s)\n",
		result.Rows, labelDur.Round(time.Millisecond), float64(result.Rows)/labelDur.Seconds())
	fmt.Printf("  levels: %v\n", result.ByLevel)

	if !*runTrain {
		return
	}

	// 3. Train
	workDir := filepath.Dir(path)
	cfg.ModelStore.Root = filepath.Join(workDir, "models")
	cfg.Training.MinNewRows = 1
	cfg.Training.StatePath = filepath.Join(workDir, "training_state.json")
	cfg.Training.LogPath = filepath.Join(workDir, "training_log.csv")

	store, err := modelstore.New(ctx, cfg.ModelStore)
	if err != nil {
		fatal("initialize model store: %v", err)
	}

	orchestrator := train.NewOrchestrator(
		repo, store, eventBus,
		drift.NewMonitor(cfg.Drift),
		train.NewStateStore(cfg.Training.StatePath),
		train.NewTrainingLog(cfg.Training.LogPath),
		cfg.Training,
		slog.Default(),
	)

	start = time.Now()
	trainResult, err := orchestrator.Run(ctx)
	if err != nil {
		fatal("retraining run: %v", err)
	}
	trainDur := time.Since(start)

	fmt.Printf("trained   %8d rows in %8s (%s)\n",
		trainResult.TrainedRows, trainDur.Round(time.Millisecond), trainResult.Version)
	for target, mv := range trainResult.Models {
		fmt.Printf("  %-24s %-8s f1_macro=%.4f accuracy=%.4f\n",
			target, mv.ModelName, mv.Metrics.F1Macro, mv.Metrics.Accuracy)
	}
}

// generate produces synthetic transactions: mostly small spends, a few
// large night-time outliers so every risk level appears.
func generate(rng *rand.Rand, n, customers int) []domain.Transaction {
	out := make([]domain.Transaction, n)
	for i := range out {
		customer := fmt.Sprintf("cust-%05d", rng.Intn(customers))
		day := rng.Intn(120)
		hour := rng.Intn(24)

		// Log-normal body with a heavy right tail.
		amount := math.Exp(rng.NormFloat64()*1.2 + 6.5)
		if rng.Float64() < 0.01 {
			amount *= 50 // occasional whale
			hour = rng.Intn(6)
		}
		if rng.Float64() < 0.85 {
			amount = -amount // spend
		}

		out[i] = domain.Transaction{
			CustomerID:   customer,
			OccurredAt:   fmt.Sprintf("%d %02d:%02d:%02d", day, hour, rng.Intn(60), rng.Intn(60)),
			CategoryCode: mccCodes[rng.Intn(len(mccCodes))],
			TypeCode:     trTypes[rng.Intn(len(trTypes))],
			Amount:       math.Round(amount*100) / 100,
		}
	}
	return out
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ERROR: "+format+"\n", args...)
	os.Exit(1)
}
