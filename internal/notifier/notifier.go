package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/guardian-safety/alert-engine/internal/domain/alert"
	"github.com/guardian-safety/alert-engine/internal/logger"
)

var (
	// ErrNoContactsConfigured is returned when the frozen contact list is
	// empty. Fatal to the send, surfaced to the caller.
	ErrNoContactsConfigured = errors.New("no emergency contacts configured")
	// ErrNoChannelsConfigured is returned when there is no channel to
	// dispatch through.
	ErrNoChannelsConfigured = errors.New("no notification channels configured")
	// ErrDeliveryFailed is returned when not a single attempt was delivered.
	ErrDeliveryFailed = errors.New("message was not delivered to any contact")
	// ErrContactUnsupported is returned by a channel that cannot reach the
	// given contact at all. Recorded as an unsupported attempt.
	ErrContactUnsupported = errors.New("contact is not reachable on this channel")
)

// NotificationChannel delivers a message to a single contact. Implementations
// must report failure through the returned error, never panic.
type NotificationChannel interface {
	// Name identifies the channel in attempt logs.
	Name() string
	// Send delivers the message to the contact.
	Send(ctx context.Context, contact alert.ContactRef, message string) error
}

// ContactDirectory provides a read-only snapshot of a user's emergency
// contacts.
type ContactDirectory interface {
	EmergencyContacts(ctx context.Context, userID string) ([]alert.ContactRef, error)
}

// Notifier dispatches messages to contacts across the configured channels.
// It is stateless, per-alert bookkeeping lives on the alert record.
type Notifier struct {
	// channels are tried independently for every contact.
	channels []NotificationChannel
	// now stamps attempts, override in tests.
	now func() time.Time
}

// New creates a notifier over the provided channels.
func New(channels ...NotificationChannel) *Notifier {
	return &Notifier{
		channels: channels,
		now:      time.Now,
	}
}

// Broadcast sends the message to every contact on every channel in
// parallel and returns one attempt per contact/channel pair, ordered by
// contact then channel.
//
// It fails with ErrNoContactsConfigured for an empty contact list, and with
// an error wrapping ErrDeliveryFailed (aggregating the per-attempt causes)
// when nothing was delivered. Partial failure is success.
func (n *Notifier) Broadcast(
	ctx context.Context,
	contacts []alert.ContactRef,
	message string,
) ([]alert.NotificationAttempt, error) {
	if len(contacts) == 0 {
		return nil, ErrNoContactsConfigured
	}

	if len(n.channels) == 0 {
		return nil, ErrNoChannelsConfigured
	}

	var (
		attempts = make([]alert.NotificationAttempt, len(contacts)*len(n.channels))
		causes   = make([]error, len(attempts))
		wg       sync.WaitGroup
	)

	for contactIndex, contact := range contacts {
		for channelIndex, channel := range n.channels {
			wg.Add(1)

			go func(slot int, contact alert.ContactRef, channel NotificationChannel) {
				defer wg.Done()

				attempt := alert.NotificationAttempt{
					ContactID:   contact.ContactID,
					Channel:     channel.Name(),
					AttemptedAt: n.now(),
				}

				err := channel.Send(ctx, contact, message)
				switch {
				case err == nil:
					attempt.Outcome = alert.OutcomeDelivered
				case errors.Is(err, ErrContactUnsupported):
					attempt.Outcome = alert.OutcomeUnsupported
					causes[slot] = fmt.Errorf("%s via %s: %w", contact.ContactID, channel.Name(), err)
				default:
					attempt.Outcome = alert.OutcomeFailed
					causes[slot] = fmt.Errorf("%s via %s: %w", contact.ContactID, channel.Name(), err)

					logger.WarnKV(ctx, "Notification attempt failed",
						"contact_id", contact.ContactID, "channel", channel.Name(), "error", err)
				}

				attempts[slot] = attempt
			}(contactIndex*len(n.channels)+channelIndex, contact, channel)
		}
	}

	wg.Wait()

	delivered := 0

	for _, attempt := range attempts {
		if attempt.Outcome == alert.OutcomeDelivered {
			delivered++
		}
	}

	if delivered == 0 {
		return attempts, fmt.Errorf("%w: %w", ErrDeliveryFailed, multierr.Combine(causes...))
	}

	logger.InfoKV(ctx, "Fan-out finished",
		"contacts", len(contacts), "channels", len(n.channels), "delivered", delivered)

	return attempts, nil
}

// StaticDirectory is a ContactDirectory over a fixed contact list.
type StaticDirectory struct {
	// contacts is the snapshot returned for every user.
	contacts []alert.ContactRef
}

// NewStaticDirectory creates a directory over the provided contacts.
func NewStaticDirectory(contacts []alert.ContactRef) *StaticDirectory {
	return &StaticDirectory{
		contacts: append([]alert.ContactRef(nil), contacts...),
	}
}

// EmergencyContacts returns a copy of the configured contact list.
func (d *StaticDirectory) EmergencyContacts(_ context.Context, _ string) ([]alert.ContactRef, error) {
	return append([]alert.ContactRef(nil), d.contacts...), nil
}
