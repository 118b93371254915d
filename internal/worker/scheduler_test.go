package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/train"
)

type fakeRunner struct {
	mu      sync.Mutex
	runs    int
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context) (*train.Result, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return &train.Result{TrainedRows: 100, Version: "v_20260829_120000"}, nil
}

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerRunsOnLabelingEvent(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	runner := &fakeRunner{started: make(chan struct{}, 1)}
	sched := NewScheduler(eventBus, runner, 0, testLogger())
	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	if err := eventBus.Publish(context.Background(), domain.TopicLabelingCompleted, []byte(`{"rows":50}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("labeling event did not trigger a run")
	}
}

func TestSchedulerSingleFlight(t *testing.T) {
	runner := &fakeRunner{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	sched := NewScheduler(nil, runner, 0, testLogger())

	var first atomic.Bool
	go func() {
		first.Store(sched.Trigger(context.Background(), "test"))
	}()
	<-runner.started

	// A second trigger while the first is in flight is dropped.
	if sched.Trigger(context.Background(), "overlap") {
		t.Error("overlapping trigger should be dropped")
	}

	close(runner.block)
	time.Sleep(50 * time.Millisecond)

	if !first.Load() {
		t.Error("first trigger should have run")
	}
	if got := runner.runCount(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}

	// After the run completes a new trigger starts again.
	runner.block = nil
	runner.started = nil
	if !sched.Trigger(context.Background(), "after") {
		t.Error("trigger after completion should run")
	}
	if got := runner.runCount(); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

func TestSchedulerInterval(t *testing.T) {
	runner := &fakeRunner{}
	sched := NewScheduler(nil, runner, 20*time.Millisecond, testLogger())
	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(110 * time.Millisecond)
	sched.Stop()

	if got := runner.runCount(); got < 2 {
		t.Errorf("runs = %d, want at least 2 ticks", got)
	}
}

func TestSchedulerStopBeforeStart(t *testing.T) {
	sched := NewScheduler(nil, &fakeRunner{}, 0, testLogger())
	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.Stop()
}
