package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestStateTransitions verifies the lifecycle transition table.
func TestStateTransitions(t *testing.T) {
	t.Parallel()

	require.True(t, StateIdle.CanTransitionTo(StateArming))
	require.True(t, StateArming.CanTransitionTo(StateIdle))
	require.True(t, StateArming.CanTransitionTo(StateSending))
	require.True(t, StateSending.CanTransitionTo(StateActive))
	require.True(t, StateSending.CanTransitionTo(StateFailed))
	require.True(t, StateActive.CanTransitionTo(StateCancelled))
	require.True(t, StateActive.CanTransitionTo(StateResolved))
	require.True(t, StateCancelling.CanTransitionTo(StateActive))

	// No alert observes Active before Sending, no resurrection from
	// terminal states.
	require.False(t, StateIdle.CanTransitionTo(StateActive))
	require.False(t, StateArming.CanTransitionTo(StateActive))
	require.False(t, StateCancelled.CanTransitionTo(StateArming))
	require.False(t, StateResolved.CanTransitionTo(StateActive))
	require.False(t, StateFailed.CanTransitionTo(StateIdle))
}

// TestStateTerminal verifies terminal classification.
func TestStateTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []State{StateCancelled, StateResolved, StateFailed} {
		require.True(t, s.Terminal(), s)
	}

	for _, s := range []State{StateIdle, StateArming, StateSending, StateActive, StateCancelling} {
		require.False(t, s.Terminal(), s)
	}
}

// TestLocationSampleValidate checks the accuracy invariant.
func TestLocationSampleValidate(t *testing.T) {
	t.Parallel()

	valid := LocationSample{
		Latitude:       55.75,
		Longitude:      37.61,
		AccuracyMeters: 12.5,
		CapturedAt:     time.Now(),
	}
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.AccuracyMeters = -1
	require.ErrorIs(t, invalid.Validate(), ErrInvalidSample)
}

// TestRecordClone verifies that Clone returns a deep copy and handles nil safely.
func TestRecordClone(t *testing.T) {
	t.Parallel()
	require.Nil(t, (*Record)(nil).Clone())

	now := time.Now().UTC().Truncate(time.Second)
	sample := &LocationSample{Latitude: 1, Longitude: 2, AccuracyMeters: 3, CapturedAt: now}

	r := &Record{
		ID:        "alert-1",
		UserID:    "user-1",
		State:     StateActive,
		Reason:    ReasonManual,
		CreatedAt: now,
		Contacts: []ContactRef{
			{ContactID: "c-1", DisplayName: "Alice", ChannelAddress: "+100", Priority: 1},
		},
		LastLocation:    sample,
		LocationHistory: []LocationSample{*sample},
		Attempts: []NotificationAttempt{
			{ContactID: "c-1", Channel: "console", AttemptedAt: now, Outcome: OutcomeDelivered},
		},
	}

	c := r.Clone()
	require.Equal(t, r, c)
	require.NotSame(t, r, c)
	require.NotSame(t, r.LastLocation, c.LastLocation)

	// Mutating the clone must not leak into the original.
	c.Contacts[0].DisplayName = "Bob"
	c.Attempts[0].Outcome = OutcomeFailed
	require.Equal(t, "Alice", r.Contacts[0].DisplayName)
	require.Equal(t, OutcomeDelivered, r.Attempts[0].Outcome)
}

// TestRecordDeliveredCount counts only delivered attempts.
func TestRecordDeliveredCount(t *testing.T) {
	t.Parallel()

	r := &Record{
		Attempts: []NotificationAttempt{
			{Outcome: OutcomeDelivered},
			{Outcome: OutcomeFailed},
			{Outcome: OutcomeDelivered},
			{Outcome: OutcomeUnsupported},
		},
	}

	require.Equal(t, 2, r.DeliveredCount())
}
