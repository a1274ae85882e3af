package invoke

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimitTimeout reports that a call could not be admitted within the
// configured wait budget. Callers treat it as a batch failure, not a
// document failure.
var ErrRateLimitTimeout = errors.New("rate limit admission timed out")

// Limiter gates outbound model calls. It enforces two independent limits
// shared by all workers of a run: a ceiling on concurrent in-flight calls
// and a minimum interval between call starts.
type Limiter struct {
	sem          chan struct{}
	interval     *rate.Limiter
	admitTimeout time.Duration
}

// NewLimiter creates a limiter admitting at most maxConcurrent in-flight
// calls with at least minInterval between call starts. A call that cannot
// be admitted within admitTimeout fails with ErrRateLimitTimeout;
// admitTimeout <= 0 waits indefinitely.
func NewLimiter(maxConcurrent int, minInterval time.Duration, admitTimeout time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	interval := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		interval = rate.NewLimiter(rate.Every(minInterval), 1)
	}

	return &Limiter{
		sem:          make(chan struct{}, maxConcurrent),
		interval:     interval,
		admitTimeout: admitTimeout,
	}
}

// Acquire blocks until the call is admitted. It returns a release function
// that must be called when the call finishes. Admission failures return
// ErrRateLimitTimeout; caller cancellation returns the context error.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	admit := ctx
	cancel := context.CancelFunc(func() {})
	if l.admitTimeout > 0 {
		admit, cancel = context.WithTimeout(ctx, l.admitTimeout)
	}

	select {
	case l.sem <- struct{}{}:
	case <-admit.Done():
		cancel()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrRateLimitTimeout
	}

	if err := l.interval.Wait(admit); err != nil {
		<-l.sem
		cancel()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrRateLimitTimeout
	}

	release := func() {
		<-l.sem
		cancel()
	}
	return release, nil
}

// InFlight reports the number of currently admitted calls.
func (l *Limiter) InFlight() int {
	return len(l.sem)
}
