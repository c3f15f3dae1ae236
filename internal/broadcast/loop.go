package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/guardian-safety/alert-engine/internal/domain/alert"
	"github.com/guardian-safety/alert-engine/internal/logger"
)

var (
	// ErrPositionUnavailable means the provider has no fix right now.
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrLocationTimeout means the provider did not answer in time.
	ErrLocationTimeout = errors.New("location request timed out")
	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("broadcast loop already running")
)

// LocationProvider produces single-shot location fixes.
type LocationProvider interface {
	CurrentLocation(ctx context.Context) (alert.LocationSample, error)
}

// SampleFunc receives accepted samples in capture order.
type SampleFunc func(ctx context.Context, sample alert.LocationSample)

// Loop samples location at a fixed period and forwards every accepted
// sample to the configured callback. One loop serves exactly one alert.
type Loop struct {
	// provider produces the fixes.
	provider LocationProvider
	// period is the sampling interval.
	period time.Duration
	// onSample receives accepted samples from the loop goroutine, which
	// keeps delivery in capture order.
	onSample SampleFunc

	// mu protects started and stopped.
	mu sync.Mutex
	// started reports whether the loop goroutine was launched.
	started bool
	// stopped reports whether Stop was called.
	stopped bool
	// stopOnce makes Stop idempotent.
	stopOnce sync.Once
	// cancel tears the loop context down.
	cancel context.CancelFunc
	// done is closed when the loop goroutine exits.
	done chan struct{}
}

// NewLoop creates a loop over the provider. A non-positive period falls
// back to 30 seconds.
func NewLoop(provider LocationProvider, period time.Duration, onSample SampleFunc) *Loop {
	if period <= 0 {
		period = 30 * time.Second
	}

	return &Loop{
		provider: provider,
		period:   period,
		onSample: onSample,
		done:     make(chan struct{}),
	}
}

// Start launches the sampling goroutine. The first sample is taken
// immediately, then once per period until Stop is called or the context
// ends.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()

	if l.started || l.stopped {
		l.mu.Unlock()

		return ErrAlreadyRunning
	}

	l.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()

	go l.run(loopCtx)

	return nil
}

// run is the sampling loop body.
func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	l.sampleOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sampleOnce(ctx)
		}
	}
}

// sampleOnce takes one fix and forwards it. Failures are logged and the
// cycle is skipped, the next tick tries again.
func (l *Loop) sampleOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	// Bound the provider call so a hung fix never outlives its cycle.
	sampleCtx, cancel := context.WithTimeout(ctx, l.period)
	defer cancel()

	sample, err := l.provider.CurrentLocation(sampleCtx)
	if err != nil {
		// A cycle that ran out of time reports as a timeout, not as the
		// provider's raw context error.
		if errors.Is(sampleCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = ErrLocationTimeout
		}

		logger.WarnKV(ctx, "Location sampling failed, skipping cycle", "error", err)

		return
	}

	if err := sample.Validate(); err != nil {
		logger.WarnKV(ctx, "Discarding invalid location sample", "error", err)

		return
	}

	// Stop may have won while the fix was in flight, samples after
	// teardown must not be forwarded.
	if ctx.Err() != nil {
		return
	}

	if l.onSample != nil {
		l.onSample(ctx, sample)
	}
}

// Stop tears the loop down. Safe to call from the cancellation path and
// from session teardown, extra calls are no-ops. Stop waits for the loop
// goroutine to exit, no sample is forwarded after it returns.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	started := l.started
	cancel := l.cancel
	l.mu.Unlock()

	l.stopOnce.Do(func() {
		if cancel != nil {
			cancel()
		}

		// A loop that never ran has no goroutine to close done.
		if !started {
			close(l.done)
		}
	})

	<-l.done
}
