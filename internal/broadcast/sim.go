package broadcast

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/guardian-safety/alert-engine/internal/domain/alert"
)

// SimulatedProvider produces a random walk around a starting position.
// It backs the engine simulator binary.
type SimulatedProvider struct {
	// mu protects the current position.
	mu sync.Mutex
	// latitude and longitude track the current simulated position.
	latitude  float64
	longitude float64
	// rng drives the walk.
	rng *rand.Rand
}

// stepDegrees is the maximum per-sample drift of the simulated walk.
const stepDegrees = 0.0005

// NewSimulatedProvider creates a provider wandering around the given
// position.
func NewSimulatedProvider(latitude, longitude float64, seed int64) *SimulatedProvider {
	return &SimulatedProvider{
		latitude:  latitude,
		longitude: longitude,
		rng:       rand.New(rand.NewSource(seed)), //nolint:gosec // Simulation, not cryptography.
	}
}

// CurrentLocation returns the next position of the walk.
func (p *SimulatedProvider) CurrentLocation(ctx context.Context) (alert.LocationSample, error) {
	if err := ctx.Err(); err != nil {
		return alert.LocationSample{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.latitude += (p.rng.Float64() - 0.5) * stepDegrees
	p.longitude += (p.rng.Float64() - 0.5) * stepDegrees

	return alert.LocationSample{
		Latitude:       p.latitude,
		Longitude:      p.longitude,
		AccuracyMeters: 5 + p.rng.Float64()*20,
		CapturedAt:     time.Now(),
	}, nil
}
