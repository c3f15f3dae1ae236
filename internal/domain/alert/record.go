package alert

import (
	"errors"
	"time"
)

// Reason identifies how an alert episode was triggered.
type Reason string

const (
	// ReasonManual means the user pressed the alert control.
	ReasonManual Reason = "manual"
	// ReasonVoice means the alert was triggered by a voice command.
	ReasonVoice Reason = "voice"
	// ReasonAutomatic means the alert was triggered by an automatic
	// safety monitor.
	ReasonAutomatic Reason = "automatic"
)

// Outcome classifies the result of a single notification attempt.
type Outcome string

const (
	// OutcomeDelivered means the channel confirmed delivery.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeFailed means the channel reported a delivery error.
	OutcomeFailed Outcome = "failed"
	// OutcomeUnsupported means the channel cannot reach that contact.
	OutcomeUnsupported Outcome = "unsupported"
)

// ErrInvalidSample is returned when a location sample fails validation.
var ErrInvalidSample = errors.New("location sample has negative accuracy")

// LocationSample is a single position fix. Samples are immutable once
// captured.
type LocationSample struct {
	// Latitude in decimal degrees.
	Latitude float64 `json:"latitude"`
	// Longitude in decimal degrees.
	Longitude float64 `json:"longitude"`
	// AccuracyMeters is the estimated error radius, never negative.
	AccuracyMeters float64 `json:"accuracyMeters"`
	// CapturedAt is when the fix was taken.
	CapturedAt time.Time `json:"capturedAt"`
}

// Validate checks the sample invariants.
func (s LocationSample) Validate() error {
	if s.AccuracyMeters < 0 {
		return ErrInvalidSample
	}

	return nil
}

// ContactRef identifies an emergency contact as snapshotted at send time.
type ContactRef struct {
	// ContactID is the stable identifier of the contact.
	ContactID string `json:"contactId"`
	// DisplayName is the human-readable contact name.
	DisplayName string `json:"displayName"`
	// ChannelAddress is the phone number or handle to reach the contact at.
	ChannelAddress string `json:"channelAddress"`
	// Priority orders contacts, lower means contacted first. Preserved
	// for future use, not consulted by the current fan-out.
	Priority int `json:"priority"`
}

// NotificationAttempt records one delivery attempt to one contact on one
// channel. Attempts are append-only and never mutated after write.
type NotificationAttempt struct {
	// ContactID identifies the targeted contact.
	ContactID string `json:"contactId"`
	// Channel names the channel the attempt went through.
	Channel string `json:"channel"`
	// AttemptedAt is when the attempt was made.
	AttemptedAt time.Time `json:"attemptedAt"`
	// Outcome classifies the delivery result.
	Outcome Outcome `json:"outcome"`
}

// CancellationAttempt records one attempt to pass the cancellation gate.
type CancellationAttempt struct {
	// AttemptedAt is when the secret was presented.
	AttemptedAt time.Time `json:"attemptedAt"`
	// Succeeded reports whether the secret matched.
	Succeeded bool `json:"succeeded"`
}

// Record describes one alert episode from arming through resolution.
// At most one record per user may be in a non-terminal state at a time;
// the engine enforces that invariant.
type Record struct {
	// ID is the opaque unique identifier of the alert.
	ID string `json:"alertId"`
	// UserID identifies the user the alert belongs to.
	UserID string `json:"userId"`
	// State is the current lifecycle phase.
	State State `json:"state"`
	// Reason records how the alert was triggered.
	Reason Reason `json:"reason"`
	// Message is the body sent to contacts.
	Message string `json:"message"`
	// CreatedAt is when the alert was armed.
	CreatedAt time.Time `json:"createdAt"`
	// Contacts is the contact list frozen at send time. Later changes to
	// the user's contact list must not mutate an in-flight alert.
	Contacts []ContactRef `json:"contacts"`
	// LastLocation is the most recent accepted sample, if any.
	LastLocation *LocationSample `json:"lastLocation,omitempty"`
	// LocationHistory holds every accepted sample in capture order.
	LocationHistory []LocationSample `json:"locationHistory,omitempty"`
	// Attempts is the append-only notification attempt log.
	Attempts []NotificationAttempt `json:"attempts,omitempty"`
	// CancellationLog is the append-only cancellation attempt log.
	CancellationLog []CancellationAttempt `json:"cancellationLog,omitempty"`
	// AcknowledgedBy lists contact IDs that confirmed seeing the alert.
	AcknowledgedBy []string `json:"acknowledgedBy,omitempty"`
	// ClosedAt is when the record reached a terminal state.
	ClosedAt *time.Time `json:"closedAt,omitempty"`
}

// Clone returns a deep copy of the record to avoid leaking internal
// references.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	cloned := *r

	if r.LastLocation != nil {
		sample := *r.LastLocation
		cloned.LastLocation = &sample
	}

	if r.ClosedAt != nil {
		closedAt := *r.ClosedAt
		cloned.ClosedAt = &closedAt
	}

	cloned.Contacts = append([]ContactRef(nil), r.Contacts...)
	cloned.LocationHistory = append([]LocationSample(nil), r.LocationHistory...)
	cloned.Attempts = append([]NotificationAttempt(nil), r.Attempts...)
	cloned.CancellationLog = append([]CancellationAttempt(nil), r.CancellationLog...)
	cloned.AcknowledgedBy = append([]string(nil), r.AcknowledgedBy...)

	return &cloned
}

// DeliveredCount returns how many attempts in the log were delivered.
func (r *Record) DeliveredCount() int {
	count := 0

	for _, attempt := range r.Attempts {
		if attempt.Outcome == OutcomeDelivered {
			count++
		}
	}

	return count
}
