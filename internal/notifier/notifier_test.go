package notifier

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guardian-safety/alert-engine/internal/domain/alert"
)

var errChannelDown = errors.New("channel is down")

// scriptedChannel is a NotificationChannel whose outcome depends on the
// contact address.
type scriptedChannel struct {
	// name identifies the channel.
	name string
	// failFor maps channel addresses to the error Send returns for them.
	failFor map[string]error
}

// Name returns the channel name.
func (c *scriptedChannel) Name() string {
	return c.name
}

// Send fails for scripted addresses and succeeds otherwise.
func (c *scriptedChannel) Send(_ context.Context, contact alert.ContactRef, _ string) error {
	return c.failFor[contact.ChannelAddress]
}

// twoContacts returns a frozen two-entry contact list.
func twoContacts() []alert.ContactRef {
	return []alert.ContactRef{
		{ContactID: "c-1", DisplayName: "Alice", ChannelAddress: "+100", Priority: 1},
		{ContactID: "c-2", DisplayName: "Bob", ChannelAddress: "+200", Priority: 2},
	}
}

// TestBroadcastAllDelivered covers the healthy path: one attempt per
// contact per channel, all delivered.
func TestBroadcastAllDelivered(t *testing.T) {
	t.Parallel()

	n := New(&scriptedChannel{name: "sms"})

	attempts, err := n.Broadcast(context.Background(), twoContacts(), "help")
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	require.Equal(t, "c-1", attempts[0].ContactID)
	require.Equal(t, "c-2", attempts[1].ContactID)

	for _, attempt := range attempts {
		require.Equal(t, alert.OutcomeDelivered, attempt.Outcome)
		require.Equal(t, "sms", attempt.Channel)
		require.False(t, attempt.AttemptedAt.IsZero())
	}
}

// TestBroadcastPartialFailureSucceeds ensures one failing contact does not
// block the others and the fan-out still counts as a success.
func TestBroadcastPartialFailureSucceeds(t *testing.T) {
	t.Parallel()

	n := New(&scriptedChannel{
		name:    "sms",
		failFor: map[string]error{"+200": errChannelDown},
	})

	attempts, err := n.Broadcast(context.Background(), twoContacts(), "help")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	require.Equal(t, alert.OutcomeDelivered, attempts[0].Outcome)
	require.Equal(t, alert.OutcomeFailed, attempts[1].Outcome)
}

// TestBroadcastAllFailed returns the aggregate delivery error.
func TestBroadcastAllFailed(t *testing.T) {
	t.Parallel()

	n := New(&scriptedChannel{
		name:    "sms",
		failFor: map[string]error{"+100": errChannelDown, "+200": errChannelDown},
	})

	attempts, err := n.Broadcast(context.Background(), twoContacts(), "help")
	require.ErrorIs(t, err, ErrDeliveryFailed)
	require.ErrorIs(t, err, errChannelDown)
	require.Len(t, attempts, 2)
}

// TestBroadcastUnsupportedContact records an unsupported outcome and still
// succeeds through the other channel.
func TestBroadcastUnsupportedContact(t *testing.T) {
	t.Parallel()

	n := New(
		&scriptedChannel{
			name:    "push",
			failFor: map[string]error{"+100": ErrContactUnsupported, "+200": ErrContactUnsupported},
		},
		&scriptedChannel{name: "sms"},
	)

	attempts, err := n.Broadcast(context.Background(), twoContacts(), "help")
	require.NoError(t, err)
	require.Len(t, attempts, 4)

	// Attempts are ordered by contact then channel.
	require.Equal(t, alert.OutcomeUnsupported, attempts[0].Outcome)
	require.Equal(t, alert.OutcomeDelivered, attempts[1].Outcome)
	require.Equal(t, alert.OutcomeUnsupported, attempts[2].Outcome)
	require.Equal(t, alert.OutcomeDelivered, attempts[3].Outcome)
}

// TestBroadcastValidation covers the fatal configuration errors.
func TestBroadcastValidation(t *testing.T) {
	t.Parallel()

	n := New(&scriptedChannel{name: "sms"})

	_, err := n.Broadcast(context.Background(), nil, "help")
	require.ErrorIs(t, err, ErrNoContactsConfigured)

	empty := New()

	_, err = empty.Broadcast(context.Background(), twoContacts(), "help")
	require.ErrorIs(t, err, ErrNoChannelsConfigured)
}

// TestConsoleChannel writes one line per contact.
func TestConsoleChannel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	channel := NewConsoleChannel(&buf)
	require.Equal(t, "console", channel.Name())

	err := channel.Send(context.Background(), twoContacts()[0], "help me")
	require.NoError(t, err)
	require.Contains(t, buf.String(), "Alice")
	require.Contains(t, buf.String(), "help me")
}

// TestStaticDirectoryReturnsCopy ensures callers cannot mutate the
// directory's snapshot.
func TestStaticDirectoryReturnsCopy(t *testing.T) {
	t.Parallel()

	directory := NewStaticDirectory(twoContacts())

	first, err := directory.EmergencyContacts(context.Background(), "user-1")
	require.NoError(t, err)

	first[0].DisplayName = "Mallory"

	second, err := directory.EmergencyContacts(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "Alice", second[0].DisplayName)
}
