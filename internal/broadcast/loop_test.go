package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guardian-safety/alert-engine/internal/domain/alert"
)

// sequenceProvider returns scripted results, cycling errors and fixes.
type sequenceProvider struct {
	// mu protects the call counter.
	mu sync.Mutex
	// calls counts CurrentLocation invocations.
	calls int
	// errEvery makes every n-th call fail when positive.
	errEvery int
}

// CurrentLocation returns a fix whose latitude encodes the call number.
func (p *sequenceProvider) CurrentLocation(_ context.Context) (alert.LocationSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.errEvery > 0 && p.calls%p.errEvery == 0 {
		return alert.LocationSample{}, ErrPositionUnavailable
	}

	return alert.LocationSample{
		Latitude:       float64(p.calls),
		AccuracyMeters: 1,
		CapturedAt:     time.Now(),
	}, nil
}

// sampleCollector accumulates forwarded samples.
type sampleCollector struct {
	// mu protects samples.
	mu sync.Mutex
	// samples holds forwarded fixes in delivery order.
	samples []alert.LocationSample
}

// add is the loop callback.
func (c *sampleCollector) add(_ context.Context, sample alert.LocationSample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples = append(c.samples, sample)
}

// snapshot returns a copy of the collected samples.
func (c *sampleCollector) snapshot() []alert.LocationSample {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]alert.LocationSample(nil), c.samples...)
}

// TestLoopForwardsSamplesInOrder runs the loop and checks capture-order
// delivery.
func TestLoopForwardsSamplesInOrder(t *testing.T) {
	t.Parallel()

	provider := new(sequenceProvider)
	collector := new(sampleCollector)
	loop := NewLoop(provider, 10*time.Millisecond, collector.add)

	require.NoError(t, loop.Start(context.Background()))
	require.ErrorIs(t, loop.Start(context.Background()), ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		return len(collector.snapshot()) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	loop.Stop()

	samples := collector.snapshot()
	for i := 1; i < len(samples); i++ {
		require.Greater(t, samples[i].Latitude, samples[i-1].Latitude)
	}
}

// TestLoopSurvivesSamplingFailures ensures a failing cycle is skipped, not
// fatal.
func TestLoopSurvivesSamplingFailures(t *testing.T) {
	t.Parallel()

	provider := &sequenceProvider{errEvery: 2}
	collector := new(sampleCollector)
	loop := NewLoop(provider, 10*time.Millisecond, collector.add)

	require.NoError(t, loop.Start(context.Background()))

	require.Eventually(t, func() bool {
		return len(collector.snapshot()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	loop.Stop()

	provider.mu.Lock()
	calls := provider.calls
	provider.mu.Unlock()

	// More calls than accepted samples proves failed cycles were skipped
	// and the loop kept going.
	require.Greater(t, calls, len(collector.snapshot()))
}

// TestLoopStopIsIdempotent verifies double Stop is safe and nothing is
// forwarded after teardown.
func TestLoopStopIsIdempotent(t *testing.T) {
	t.Parallel()

	collector := new(sampleCollector)
	loop := NewLoop(new(sequenceProvider), 10*time.Millisecond, collector.add)

	require.NoError(t, loop.Start(context.Background()))

	loop.Stop()
	loop.Stop()

	count := len(collector.snapshot())
	time.Sleep(50 * time.Millisecond)
	require.Len(t, collector.snapshot(), count)
}

// TestLoopStopWithoutStart does not hang or panic.
func TestLoopStopWithoutStart(t *testing.T) {
	t.Parallel()

	loop := NewLoop(new(sequenceProvider), time.Second, nil)
	loop.Stop()
	loop.Stop()
	require.ErrorIs(t, loop.Start(context.Background()), ErrAlreadyRunning)
}

// TestSimulatedProviderWalks produces valid, drifting samples.
func TestSimulatedProviderWalks(t *testing.T) {
	t.Parallel()

	provider := NewSimulatedProvider(55.75, 37.61, 1)

	first, err := provider.CurrentLocation(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Validate())

	second, err := provider.CurrentLocation(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.Latitude, second.Latitude)

	// Cancelled context is honoured.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = provider.CurrentLocation(ctx)
	require.Error(t, err)
}
