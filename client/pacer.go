package client

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time for the pacer and backoff sleeps so tests can
// simulate elapsed time without real delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// pacer enforces a minimum interval between request attempts across all
// workers sharing the client. Each Wait reserves the next slot under the
// lock, so the aggregate rate never exceeds one attempt per interval.
type pacer struct {
	clk      Clock
	interval time.Duration

	mu   sync.Mutex
	next time.Time
}

func newPacer(interval time.Duration, clk Clock) *pacer {
	if clk == nil {
		clk = realClock{}
	}
	return &pacer{clk: clk, interval: interval}
}

// Wait blocks until this caller's reserved slot arrives. The reservation
// advances on every call, including attempts that go on to fail.
func (p *pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.interval <= 0 {
		return nil
	}

	p.mu.Lock()
	now := p.clk.Now()
	at := p.next
	if at.Before(now) {
		at = now
	}
	p.next = at.Add(p.interval)
	p.mu.Unlock()

	if d := at.Sub(now); d > 0 {
		p.clk.Sleep(d)
	}
	return nil
}
