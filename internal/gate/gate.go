package gate

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"sync"
)

var (
	// ErrVerificationFailed is returned when the presented secret does not
	// match. Counted towards the lockout.
	ErrVerificationFailed = errors.New("cancellation secret did not match")
	// ErrLocked is returned once the gate has locked, the secret is no
	// longer consulted and the alert stays active.
	ErrLocked = errors.New("cancellation gate is locked")
)

// SecretStore compares a candidate against the stored cancellation secret.
type SecretStore interface {
	Compare(candidate string) bool
}

// StaticSecretStore holds a secret in memory and compares candidates
// against it in constant time.
type StaticSecretStore struct {
	// digest is the SHA-256 of the stored secret. Hashing first keeps the
	// comparison constant time regardless of candidate length.
	digest [sha256.Size]byte
}

// NewStaticSecretStore creates a store for the provided secret.
func NewStaticSecretStore(secret string) *StaticSecretStore {
	return &StaticSecretStore{
		digest: sha256.Sum256([]byte(secret)),
	}
}

// Compare reports whether the candidate matches the stored secret.
func (s *StaticSecretStore) Compare(candidate string) bool {
	candidateDigest := sha256.Sum256([]byte(candidate))

	return subtle.ConstantTimeCompare(s.digest[:], candidateDigest[:]) == 1
}

// Gate tracks consecutive verification failures for one alert episode and
// locks after the configured maximum. Create a fresh gate per alert.
type Gate struct {
	// store compares candidates against the stored secret.
	store SecretStore
	// maxAttempts is how many consecutive failures lock the gate.
	maxAttempts int

	// mu protects the fields below.
	mu sync.Mutex
	// failures counts consecutive failed verifications since the last reset.
	failures int
	// locked marks the gate as refusing further verification.
	locked bool
}

// DefaultMaxAttempts is the lockout threshold used when none is configured.
const DefaultMaxAttempts = 3

// NewGate creates a gate backed by the provided secret store.
func NewGate(store SecretStore, maxAttempts int) *Gate {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Gate{
		store:       store,
		maxAttempts: maxAttempts,
	}
}

// Verify checks the candidate secret.
//
// It returns nil on a match (and resets the failure counter),
// ErrVerificationFailed on a mismatch, and ErrLocked once the gate has
// locked. The failing attempt that reaches the maximum still returns
// ErrVerificationFailed, every attempt after it gets ErrLocked without the
// store being consulted.
func (g *Gate) Verify(candidate string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.locked {
		return ErrLocked
	}

	if g.store != nil && g.store.Compare(candidate) {
		g.failures = 0

		return nil
	}

	g.failures++
	if g.failures >= g.maxAttempts {
		g.locked = true
	}

	return ErrVerificationFailed
}

// Locked reports whether the gate refuses further verification.
func (g *Gate) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.locked
}

// Failures returns the current consecutive failure count.
func (g *Gate) Failures() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.failures
}
