package countdown

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Status describes the timer lifecycle.
type Status int

const (
	// StatusPending means the timer has been created but not started.
	StatusPending Status = iota
	// StatusRunning means ticks are being accepted.
	StatusRunning
	// StatusExpired means the countdown reached zero.
	StatusExpired
	// StatusCancelled means the countdown was stopped early.
	StatusCancelled
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("countdown already started")
	// ErrNonPositiveDuration is returned for a zero or negative countdown.
	ErrNonPositiveDuration = errors.New("countdown duration must be positive")
)

// Settings configures a Timer.
type Settings struct {
	// Duration is the total countdown length.
	Duration time.Duration
	// Interval is the tick period.
	Interval time.Duration
	// OnTick receives the remaining whole ticks after each accepted tick.
	// Optional.
	OnTick func(remaining int)
	// OnExpire fires exactly once when the countdown reaches zero. Optional.
	OnExpire func()
	// OnCancel fires exactly once when the countdown is cancelled early.
	// Optional.
	OnCancel func()
}

// Timer is a monotonic tick-driven countdown with a single terminal event.
// Ticks can be driven by the internal runner (Start) or manually (Tick),
// which keeps tests deterministic.
type Timer struct {
	// interval is the tick period for the internal runner.
	interval time.Duration
	// onTick, onExpire, onCancel are the configured callbacks.
	onTick   func(remaining int)
	onExpire func()
	onCancel func()

	// mu protects the fields below.
	mu sync.Mutex
	// remaining is the number of ticks left before expiry.
	remaining int
	// status is the current timer lifecycle phase.
	status Status
	// started reports whether the internal runner was launched.
	started bool
	// stop wakes the internal runner on cancellation.
	stop chan struct{}
}

// NewTimer creates a timer from the provided settings. The number of ticks
// is the duration divided by the interval, rounded up, at least one.
func NewTimer(settings Settings) (*Timer, error) {
	if settings.Duration <= 0 {
		return nil, ErrNonPositiveDuration
	}

	interval := settings.Interval
	if interval <= 0 {
		interval = time.Second
	}

	ticks := int((settings.Duration + interval - 1) / interval)
	if ticks < 1 {
		ticks = 1
	}

	return &Timer{
		interval:  interval,
		onTick:    settings.OnTick,
		onExpire:  settings.OnExpire,
		onCancel:  settings.OnCancel,
		remaining: ticks,
		status:    StatusPending,
		stop:      make(chan struct{}),
	}, nil
}

// Arm moves a pending timer to running without launching the internal
// runner. Callers drive it with Tick. Arming a non-pending timer is a no-op.
func (t *Timer) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == StatusPending {
		t.status = StatusRunning
	}
}

// Start arms the timer and launches the internal runner, which ticks once
// per interval until a terminal event fires or the context is cancelled.
// Context cancellation counts as an early cancel.
func (t *Timer) Start(ctx context.Context) error {
	t.mu.Lock()

	if t.started {
		t.mu.Unlock()

		return ErrAlreadyStarted
	}

	t.started = true

	if t.status == StatusPending {
		t.status = StatusRunning
	}
	t.mu.Unlock()

	go t.run(ctx)

	return nil
}

// run is the internal ticking loop.
func (t *Timer) run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Cancel()

			return
		case <-t.stop:
			return
		case <-ticker.C:
			if !t.Tick() {
				return
			}
		}
	}
}

// Tick advances the countdown by one interval. It returns false once the
// timer is in a terminal state, a tick after expiry or cancellation is a
// no-op. A cancellation observed before the tick is processed always wins.
func (t *Timer) Tick() bool {
	t.mu.Lock()

	if t.status != StatusRunning {
		t.mu.Unlock()

		return false
	}

	t.remaining--
	remaining := t.remaining

	expired := remaining <= 0
	if expired {
		t.status = StatusExpired
	}
	t.mu.Unlock()

	// Callbacks run outside the lock so they may call back into the timer.
	if t.onTick != nil {
		t.onTick(remaining)
	}

	if expired {
		if t.onExpire != nil {
			t.onExpire()
		}

		return false
	}

	return true
}

// Cancel stops the countdown early. It reports whether this call won the
// race, a cancel after expiry or a second cancel returns false and has no
// effect.
func (t *Timer) Cancel() bool {
	t.mu.Lock()

	if t.status != StatusRunning && t.status != StatusPending {
		t.mu.Unlock()

		return false
	}

	t.status = StatusCancelled
	close(t.stop)
	t.mu.Unlock()

	if t.onCancel != nil {
		t.onCancel()
	}

	return true
}

// Remaining returns the number of ticks left before expiry.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.remaining
}

// Status returns the current timer lifecycle phase.
func (t *Timer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.status
}
