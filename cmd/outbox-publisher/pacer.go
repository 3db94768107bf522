package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// pacer decides how long to wait between batches. A full batch loops
// immediately, an empty poll waits one interval and consecutive failures
// double the wait up to maxBackoff.
type pacer struct {
	interval time.Duration
	backoff  time.Duration
}

func newPacer(interval time.Duration) *pacer {
	return &pacer{interval: interval, backoff: interval}
}

func (p *pacer) next(claimed bool, err error) time.Duration {
	if err != nil {
		p.backoff = min(max(p.backoff, p.interval)*2, maxBackoff)
		return jitter(p.backoff)
	}
	p.backoff = p.interval
	if claimed {
		return 0
	}
	return jitter(p.interval)
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
