package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/guardian-safety/alert-engine/internal/broadcast"
	"github.com/guardian-safety/alert-engine/internal/domain/alert"
	"github.com/guardian-safety/alert-engine/internal/eventbus"
	"github.com/guardian-safety/alert-engine/internal/logger"
	"github.com/guardian-safety/alert-engine/internal/notifier"
)

// alertMessage renders the fan-out body for a trigger reason.
func alertMessage(reason alert.Reason) string {
	switch reason {
	case alert.ReasonVoice:
		return "EMERGENCY: I need help. This alert was triggered by voice command."
	case alert.ReasonAutomatic:
		return "EMERGENCY: I need help. This alert was triggered automatically."
	case alert.ReasonManual:
		return "EMERGENCY: I need help."
	default:
		return "EMERGENCY: I need help."
	}
}

// locationMessage renders a silent location update body.
func locationMessage(sample alert.LocationSample) string {
	return fmt.Sprintf("Location update: %.5f, %.5f (±%.0fm)",
		sample.Latitude, sample.Longitude, sample.AccuracyMeters)
}

// finalMessage renders the last-known-position body sent on teardown.
func finalMessage(sample alert.LocationSample) string {
	return fmt.Sprintf("Alert closed. Last known location: %.5f, %.5f (±%.0fm)",
		sample.Latitude, sample.Longitude, sample.AccuracyMeters)
}

// onCountdownTick publishes the remaining countdown value.
func (e *Engine) onCountdownTick(remaining int) {
	e.publish(eventbus.Event{Kind: eventbus.KindCountdownTick, SecondsLeft: remaining})
}

// onCountdownExpired hands over to the send path. The countdown timer
// guarantees this fires at most once per episode.
func (e *Engine) onCountdownExpired() {
	e.mu.Lock()
	ctx := e.episodeCtx
	e.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	e.send(ctx)
}

// send runs the notification fan-out: freeze the contact snapshot, grab an
// initial fix, dispatch, then either activate the broadcast loop or fail.
// All I/O happens outside the engine lock.
func (e *Engine) send(ctx context.Context) {
	e.mu.Lock()

	if !e.advance(alert.StateSending) {
		e.mu.Unlock()

		return
	}

	message := e.record.Message
	e.mu.Unlock()

	e.publish(eventbus.Event{Kind: eventbus.KindStateChanged, State: alert.StateSending})

	contacts, err := e.directory.EmergencyContacts(ctx, e.userID)
	if err != nil {
		logger.ErrorKV(ctx, "Contact directory unavailable", "error", err)
	}

	if len(contacts) == 0 {
		e.fail(ctx, fmt.Errorf("freeze contacts: %w", notifier.ErrNoContactsConfigured))

		return
	}

	// Initial fix is best effort, the broadcast loop keeps trying later.
	sample, sampleErr := e.initialFix(ctx)

	e.mu.Lock()
	// Snapshot at send time, later contact list changes never touch an
	// in-flight alert.
	e.record.Contacts = append([]alert.ContactRef(nil), contacts...)

	if sampleErr == nil {
		e.record.LastLocation = &sample
		e.record.LocationHistory = append(e.record.LocationHistory, sample)
	}
	e.mu.Unlock()

	if sampleErr == nil {
		message = message + " " + locationMessage(sample)
		e.publish(eventbus.Event{Kind: eventbus.KindLocationUpdated, Sample: &sample})
	}

	attempts, sendErr := e.fanout.Broadcast(ctx, contacts, message)

	e.mu.Lock()
	e.record.Attempts = append(e.record.Attempts, attempts...)
	e.mu.Unlock()

	for i := range attempts {
		e.publish(eventbus.Event{Kind: eventbus.KindNotificationLogged, Attempt: &attempts[i]})
	}

	// Failed is reserved for the case where both the location subsystem
	// and every contact channel are unavailable. A fan-out that failed
	// while a fix exists still activates, the broadcast loop re-sends on
	// its own cadence.
	if sendErr != nil && sampleErr != nil {
		e.fail(ctx, fmt.Errorf("send alert: %w", multierr.Append(sendErr, sampleErr)))

		return
	}

	if sendErr != nil {
		logger.WarnKV(ctx, "Fan-out degraded, activating anyway", "error", sendErr)
	}

	e.activate(ctx)
}

// initialFix fetches the send-time location sample.
func (e *Engine) initialFix(ctx context.Context) (alert.LocationSample, error) {
	fixCtx, cancel := context.WithTimeout(ctx, e.cfg.BroadcastPeriod)
	defer cancel()

	sample, err := e.provider.CurrentLocation(fixCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(fixCtx.Err(), context.DeadlineExceeded) {
			err = broadcast.ErrLocationTimeout
		}

		logger.WarnKV(ctx, "No initial location fix", "error", err)

		return alert.LocationSample{}, err
	}

	if err := sample.Validate(); err != nil {
		return alert.LocationSample{}, err
	}

	return sample, nil
}

// activate transitions Sending to Active and starts the broadcast loop.
func (e *Engine) activate(ctx context.Context) {
	e.mu.Lock()

	if !e.advance(alert.StateActive) {
		e.mu.Unlock()

		return
	}

	loop := broadcast.NewLoop(e.provider, e.cfg.BroadcastPeriod, e.onSample)
	e.loop = loop
	episodeCtx := e.episodeCtx
	e.mu.Unlock()

	if err := loop.Start(episodeCtx); err != nil {
		logger.ErrorKV(ctx, "Broadcast loop failed to start", "error", err)
	}

	logger.InfoKV(ctx, "Alert active, broadcasting location",
		"period", e.cfg.BroadcastPeriod)

	e.persist(ctx)
	e.publish(eventbus.Event{Kind: eventbus.KindStateChanged, State: alert.StateActive})
}

// fail moves the episode to the Failed terminal state and surfaces the
// cause through Err.
func (e *Engine) fail(ctx context.Context, cause error) {
	e.mu.Lock()

	if !e.advance(alert.StateFailed) {
		e.mu.Unlock()

		return
	}

	closedAt := e.now()
	e.record.ClosedAt = &closedAt
	e.lastErr = cause
	e.mu.Unlock()

	logger.ErrorKV(ctx, "Alert failed", "error", cause)
	e.persist(ctx)
	e.publish(eventbus.Event{Kind: eventbus.KindStateChanged, State: alert.StateFailed})
}

// onSample accepts one fix from the broadcast loop: it updates the record,
// publishes the sample and forwards it to the contacts as silent,
// best-effort telemetry. Samples arriving after the alert left Active are
// dropped.
func (e *Engine) onSample(ctx context.Context, sample alert.LocationSample) {
	e.mu.Lock()

	if e.record == nil || e.record.State != alert.StateActive {
		e.mu.Unlock()

		return
	}

	e.record.LastLocation = &sample
	e.record.LocationHistory = append(e.record.LocationHistory, sample)
	contacts := append([]alert.ContactRef(nil), e.record.Contacts...)
	e.mu.Unlock()

	e.publish(eventbus.Event{Kind: eventbus.KindLocationUpdated, Sample: &sample})

	// Telemetry only: failures are logged by the notifier, never surfaced,
	// and no retry is scheduled, the next cycle re-sends anyway.
	if _, err := e.fanout.Broadcast(ctx, contacts, locationMessage(sample)); err != nil {
		logger.DebugKV(ctx, "Silent location update not delivered", "error", err)
	}
}

// finish moves the episode from Active or Cancelling to the given terminal
// state, tears the broadcast loop down exactly once and flushes the last
// known position to the contacts.
func (e *Engine) finish(ctx context.Context, terminal alert.State) {
	e.mu.Lock()

	if !e.advance(terminal) {
		e.mu.Unlock()

		return
	}

	closedAt := e.now()
	e.record.ClosedAt = &closedAt

	loop := e.loop
	e.loop = nil
	lockoutTimer := e.lockoutTimer
	e.lockoutTimer = nil

	var lastLocation *alert.LocationSample
	if e.record.LastLocation != nil {
		sample := *e.record.LastLocation
		lastLocation = &sample
	}

	contacts := append([]alert.ContactRef(nil), e.record.Contacts...)
	e.mu.Unlock()

	if lockoutTimer != nil {
		lockoutTimer.Stop()
	}

	// Stop is idempotent, the session teardown path may race us here.
	if loop != nil {
		loop.Stop()
	}

	// Contacts get a last-known position even if the device drops off the
	// network right after.
	if lastLocation != nil && len(contacts) > 0 {
		if _, err := e.fanout.Broadcast(ctx, contacts, finalMessage(*lastLocation)); err != nil {
			logger.WarnKV(ctx, "Final location flush not delivered", "error", err)
		}
	}

	logger.InfoKV(ctx, "Alert closed", "state", terminal)
	e.persist(ctx)
	e.publish(eventbus.Event{Kind: eventbus.KindStateChanged, State: terminal})
}

// persist saves the current record, logging instead of failing, losing a
// history write must never break an alert in flight.
func (e *Engine) persist(ctx context.Context) {
	if e.repo == nil {
		return
	}

	e.mu.Lock()
	record := e.record.Clone()
	e.mu.Unlock()

	if record == nil {
		return
	}

	if err := e.repo.Save(ctx, record); err != nil {
		logger.ErrorKV(ctx, "Failed to persist alert record", "error", err)
	}
}

// publish stamps the event with the episode identity and hands it to the bus.
func (e *Engine) publish(event eventbus.Event) {
	e.mu.Lock()

	if e.record != nil {
		event.AlertID = e.record.ID
		event.UserID = e.record.UserID
	}

	ctx := e.episodeCtx
	e.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	e.bus.Publish(ctx, event)
}
