package client

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Sleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.sleeps = append(f.sleeps, d)
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeClock) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}

func TestPacerFirstCallImmediate(t *testing.T) {
	clk := newFakeClock()
	p := newPacer(time.Second, clk)

	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got := clk.Sleeps(); len(got) != 0 {
		t.Fatalf("sleeps = %v, want none", got)
	}
}

func TestPacerSpacesConsecutiveCalls(t *testing.T) {
	clk := newFakeClock()
	p := newPacer(time.Second, clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait() #%d error = %v", i+1, err)
		}
	}

	got := clk.Sleeps()
	want := []time.Duration{time.Second, time.Second}
	if len(got) != len(want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sleeps[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPacerSlowCallerWaitsNothing(t *testing.T) {
	clk := newFakeClock()
	p := newPacer(time.Second, clk)
	ctx := context.Background()

	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	clk.Advance(3 * time.Second)
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}

	if got := clk.Sleeps(); len(got) != 0 {
		t.Fatalf("sleeps = %v, want none", got)
	}
}

func TestPacerZeroIntervalNeverBlocks(t *testing.T) {
	clk := newFakeClock()
	p := newPacer(0, clk)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if got := clk.Sleeps(); len(got) != 0 {
		t.Fatalf("sleeps = %v, want none", got)
	}
}

func TestPacerCanceledContext(t *testing.T) {
	clk := newFakeClock()
	p := newPacer(time.Second, clk)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Wait(ctx); err != context.Canceled {
		t.Fatalf("Wait() error = %v, want %v", err, context.Canceled)
	}
}

func TestPacerSharedAcrossGoroutines(t *testing.T) {
	const interval = 30 * time.Millisecond
	p := newPacer(interval, nil)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Wait(context.Background()); err != nil {
				t.Errorf("Wait() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed < 2*interval {
		t.Fatalf("elapsed = %v, want at least %v", elapsed, 2*interval)
	}
}
