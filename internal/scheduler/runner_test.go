package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"weather-etl/internal/services"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

var (
	testLogger  = logging.NewStructuredLogger("scheduler-test", "test", "error")
	testMetrics = metrics.NewCollector("scheduler_test")
)

// fakePipeline counts cycles and can trigger side effects per cycle
type fakePipeline struct {
	cycles  int
	onCycle func(n int)
}

func (f *fakePipeline) RunCycle(ctx context.Context) *services.CycleResult {
	f.cycles++
	if f.onCycle != nil {
		f.onCycle(f.cycles)
	}
	return &services.CycleResult{CycleID: "test-cycle"}
}

func TestRun_RunOnceMode(t *testing.T) {
	fp := &fakePipeline{}
	runner := NewRunner(fp, time.Hour, true, testLogger, testMetrics)

	done := make(chan error, 1)
	go func() { done <- runner.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run-once mode did not terminate")
	}

	if fp.cycles != 1 {
		t.Errorf("cycles = %d, want exactly 1", fp.cycles)
	}
}

func TestRun_ZeroIntervalCyclesRepeatedly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fp := &fakePipeline{onCycle: func(n int) {
		if n >= 3 {
			cancel()
		}
	}}
	runner := NewRunner(fp, 0, false, testLogger, testMetrics)

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}

	if fp.cycles < 2 {
		t.Errorf("cycles = %d, want at least 2", fp.cycles)
	}
}

func TestRun_CancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fp := &fakePipeline{onCycle: func(n int) {
		// Cancel while the runner sleeps between cycles.
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
	}}
	runner := NewRunner(fp, time.Hour, false, testLogger, testMetrics)

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not wake from sleep on cancellation")
	}

	if fp.cycles != 1 {
		t.Errorf("cycles = %d, want 1", fp.cycles)
	}
}

// panickyPipeline fails hard on the first cycle
type panickyPipeline struct {
	cycles int
	cancel context.CancelFunc
}

func (p *panickyPipeline) RunCycle(ctx context.Context) *services.CycleResult {
	p.cycles++
	if p.cycles == 1 {
		panic("cycle exploded")
	}
	if p.cycles >= 2 {
		p.cancel()
	}
	return &services.CycleResult{}
}

func TestRun_SurvivesPanickingCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pp := &panickyPipeline{cancel: cancel}
	runner := NewRunner(pp, 0, false, testLogger, testMetrics)

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not continue after a panicking cycle")
	}

	if pp.cycles < 2 {
		t.Errorf("cycles = %d, want the loop to survive the panic and run again", pp.cycles)
	}
}
