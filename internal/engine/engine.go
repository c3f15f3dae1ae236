package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guardian-safety/alert-engine/internal/broadcast"
	"github.com/guardian-safety/alert-engine/internal/config"
	"github.com/guardian-safety/alert-engine/internal/countdown"
	"github.com/guardian-safety/alert-engine/internal/domain/alert"
	"github.com/guardian-safety/alert-engine/internal/eventbus"
	"github.com/guardian-safety/alert-engine/internal/gate"
	"github.com/guardian-safety/alert-engine/internal/logger"
	"github.com/guardian-safety/alert-engine/internal/notifier"
	"github.com/guardian-safety/alert-engine/internal/repository/history"
)

var (
	// ErrAlreadyArmed is returned when Arm is called while another alert
	// for the user is still in a non-terminal state.
	ErrAlreadyArmed = errors.New("an alert is already in progress")
	// ErrNotArming is returned when the free countdown abort is requested
	// outside the Arming state.
	ErrNotArming = errors.New("no countdown in progress")
	// ErrNotActive is returned for operations that require an active alert.
	ErrNotActive = errors.New("no active alert")
	// ErrUnknownContact is returned when an acknowledgement names a contact
	// that is not on the alert.
	ErrUnknownContact = errors.New("contact is not attached to this alert")

	// errMissingCollaborator is returned by New for nil required dependencies.
	errMissingCollaborator = errors.New("directory, notifier and location provider are required")
)

// Settings wires the engine's collaborators together.
type Settings struct {
	// UserID identifies the session owner.
	UserID string
	// Config supplies timings and safety parameters. Nil means defaults.
	Config *config.Config
	// Directory supplies the emergency contact snapshot at send time.
	Directory notifier.ContactDirectory
	// Notifier fans messages out to the contacts.
	Notifier *notifier.Notifier
	// Provider produces location fixes.
	Provider broadcast.LocationProvider
	// Secrets backs the cancellation gate. Required when the config
	// demands a secret for cancellation.
	Secrets gate.SecretStore
	// History persists alert records. Optional.
	History history.Repository
	// Bus receives engine events. Nil means a private bus.
	Bus *eventbus.Bus
}

// Engine is the single owner of one alert episode per user session.
type Engine struct {
	// userID identifies the session owner.
	userID string
	// cfg holds validated engine settings.
	cfg *config.Config
	// directory, fanout, provider, secrets, repo are the collaborators.
	directory notifier.ContactDirectory
	fanout    *notifier.Notifier
	provider  broadcast.LocationProvider
	secrets   gate.SecretStore
	repo      history.Repository
	// bus publishes engine events to sinks.
	bus *eventbus.Bus

	// newID mints alert identifiers, override in tests.
	newID func() string
	// now stamps transitions, override in tests.
	now func() time.Time

	// mu serializes every record mutation.
	mu sync.Mutex
	// record is the current episode, nil before the first Arm.
	record *alert.Record
	// timer is the countdown of the current episode.
	timer *countdown.Timer
	// loop is the location broadcast loop of the current episode.
	loop *broadcast.Loop
	// cancelGate guards cancellation of the current episode.
	cancelGate *gate.Gate
	// lockoutTimer force-cancels a locked alert after the configured delay.
	lockoutTimer *time.Timer
	// episodeCtx outlives the caller's context for background activities.
	episodeCtx context.Context //nolint:containedctx // Detached lifecycle context for the episode.
	// lastErr records the terminal failure of the last episode, if any.
	lastErr error
}

// New creates an engine from the provided settings.
func New(settings Settings) (*Engine, error) {
	if settings.Directory == nil || settings.Notifier == nil || settings.Provider == nil {
		return nil, errMissingCollaborator
	}

	cfg := settings.Config
	if cfg == nil {
		cfg = config.Default()
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	bus := settings.Bus
	if bus == nil {
		bus = eventbus.New()
	}

	return &Engine{
		userID:    settings.UserID,
		cfg:       cfg,
		directory: settings.Directory,
		fanout:    settings.Notifier,
		provider:  settings.Provider,
		secrets:   settings.Secrets,
		repo:      settings.History,
		bus:       bus,
		newID:     func() string { return uuid.NewString() },
		now:       time.Now,
	}, nil
}

// Bus returns the event bus the engine publishes to.
func (e *Engine) Bus() *eventbus.Bus {
	return e.bus
}

// State returns the current lifecycle state, StateIdle before the first arm.
func (e *Engine) State() alert.State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.record == nil {
		return alert.StateIdle
	}

	return e.record.State
}

// Record returns a copy of the current episode's record, nil when idle.
func (e *Engine) Record() *alert.Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.record.Clone()
}

// Err returns the terminal failure of the last episode, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lastErr
}

// advance moves the current record to next when the lifecycle transition
// table allows it. Caller must hold e.mu.
func (e *Engine) advance(next alert.State) bool {
	if e.record == nil || !e.record.State.CanTransitionTo(next) {
		return false
	}

	e.record.State = next

	return true
}

// Arm starts a new alert episode: a countdown begins and, unless aborted,
// expires into the notification fan-out. It returns the new alert ID and
// fails with ErrAlreadyArmed while another episode is non-terminal.
func (e *Engine) Arm(ctx context.Context, reason alert.Reason) (string, error) {
	e.mu.Lock()

	if e.record != nil && !e.record.State.Terminal() {
		e.mu.Unlock()

		return "", ErrAlreadyArmed
	}

	timer, err := countdown.NewTimer(countdown.Settings{
		Duration: e.cfg.Countdown,
		Interval: e.cfg.TickInterval,
		OnTick:   e.onCountdownTick,
		OnExpire: e.onCountdownExpired,
	})
	if err != nil {
		e.mu.Unlock()

		return "", fmt.Errorf("create countdown: %w", err)
	}

	record := &alert.Record{
		ID:        e.newID(),
		UserID:    e.userID,
		State:     alert.StateArming,
		Reason:    reason,
		Message:   alertMessage(reason),
		CreatedAt: e.now(),
	}

	// Background activities of this episode must not die with the
	// caller's request context.
	episodeCtx := logger.WithKV(context.WithoutCancel(ctx), "alert_id", record.ID)

	// A lockout timer from the previous episode must not survive into
	// this one.
	if e.lockoutTimer != nil {
		e.lockoutTimer.Stop()
		e.lockoutTimer = nil
	}

	e.record = record
	e.timer = timer
	e.loop = nil
	e.lastErr = nil
	e.episodeCtx = episodeCtx

	if e.secrets != nil && e.cfg.RequireSecret {
		e.cancelGate = gate.NewGate(e.secrets, e.cfg.MaxCancelAttempts)
	} else {
		e.cancelGate = nil
	}

	if err := timer.Start(episodeCtx); err != nil {
		e.mu.Unlock()

		return "", fmt.Errorf("start countdown: %w", err)
	}

	// Publishing takes the engine lock again, it must happen after the
	// release.
	e.mu.Unlock()

	logger.InfoKV(ctx, "Alert armed", "alert_id", record.ID, "reason", reason,
		"countdown", e.cfg.Countdown)
	e.publish(eventbus.Event{Kind: eventbus.KindStateChanged, State: alert.StateArming})

	return record.ID, nil
}

// Tick advances the countdown by one interval. A tick after the countdown
// has finished is a no-op.
func (e *Engine) Tick() {
	e.mu.Lock()
	timer := e.timer
	e.mu.Unlock()

	if timer != nil {
		timer.Tick()
	}
}

// CancelDuringCountdown aborts the countdown for free. Valid only while
// Arming, no contacts are notified and nothing is persisted.
func (e *Engine) CancelDuringCountdown(ctx context.Context) error {
	e.mu.Lock()

	if e.record == nil || e.record.State != alert.StateArming {
		e.mu.Unlock()

		return ErrNotArming
	}

	timer := e.timer
	e.mu.Unlock()

	// The timer decides the race, a cancel observed before the expiry
	// tick always wins.
	if !timer.Cancel() {
		return ErrNotArming
	}

	e.mu.Lock()
	e.advance(alert.StateIdle)
	e.record = nil
	e.timer = nil
	e.cancelGate = nil
	e.mu.Unlock()

	logger.Info(ctx, "Countdown aborted, no alert was sent")
	e.publish(eventbus.Event{Kind: eventbus.KindStateChanged, State: alert.StateIdle})

	return nil
}

// RequestCancellation attempts a guarded cancellation of an active alert.
//
// Without a configured gate the cancellation is immediate. With one, the
// secret is verified, failures are counted towards the lockout, and once
// locked every further attempt is rejected while the alert stays active.
func (e *Engine) RequestCancellation(ctx context.Context, secret string) error {
	e.mu.Lock()

	if e.record == nil || e.record.State != alert.StateActive {
		e.mu.Unlock()

		return ErrNotActive
	}

	if e.cancelGate == nil {
		e.mu.Unlock()
		e.finish(ctx, alert.StateCancelled)

		return nil
	}

	e.advance(alert.StateCancelling)
	e.mu.Unlock()

	e.publish(eventbus.Event{Kind: eventbus.KindStateChanged, State: alert.StateCancelling})

	verifyErr := e.cancelGate.Verify(secret)

	e.mu.Lock()

	if e.record == nil || e.record.State != alert.StateCancelling {
		// A concurrent resolve or forced cancel finished the episode first.
		e.mu.Unlock()

		return verifyErr
	}

	e.record.CancellationLog = append(e.record.CancellationLog, alert.CancellationAttempt{
		AttemptedAt: e.now(),
		Succeeded:   verifyErr == nil,
	})

	if verifyErr == nil {
		e.mu.Unlock()
		e.finish(ctx, alert.StateCancelled)

		return nil
	}

	// Failed or locked, the alert stays active. The locking strike itself
	// comes back as a verification failure, later attempts as ErrLocked.
	e.advance(alert.StateActive)

	justLocked := e.cancelGate.Locked() && errors.Is(verifyErr, gate.ErrVerificationFailed)
	if justLocked {
		// Scheduled under the same lock that observed the lockout, a
		// concurrent resolve cannot slip in between.
		e.scheduleLockout()
	}
	e.mu.Unlock()

	e.publish(eventbus.Event{Kind: eventbus.KindStateChanged, State: alert.StateActive})

	if justLocked {
		e.publish(eventbus.Event{Kind: eventbus.KindGateLocked})
		logger.WarnKV(ctx, "Cancellation gate locked",
			"auto_cancel_delay", e.cfg.LockoutAutoCancelDelay)
	}

	logger.WarnKV(ctx, "Cancellation rejected, alert remains active", "error", verifyErr)

	return fmt.Errorf("cancellation rejected: %w", verifyErr)
}

// scheduleLockout arms the automatic force-cancel of a locked alert.
// Caller must hold e.mu.
func (e *Engine) scheduleLockout() {
	if e.cfg.LockoutAutoCancelDelay <= 0 || e.lockoutTimer != nil {
		return
	}

	alertID := e.record.ID
	episodeCtx := e.episodeCtx

	e.lockoutTimer = time.AfterFunc(e.cfg.LockoutAutoCancelDelay, func() {
		e.mu.Lock()
		// The delay may outlive the episode, only the alert that locked
		// the gate is ever force-cancelled.
		stillActive := e.record != nil && e.record.ID == alertID &&
			e.record.State == alert.StateActive
		e.mu.Unlock()

		if stillActive {
			logger.Warn(episodeCtx, "Lockout delay elapsed, force-cancelling alert")
			e.finish(episodeCtx, alert.StateCancelled)
		}
	})
}

// Resolve closes an active alert administratively, e.g. when a contact
// confirms the user is safe.
func (e *Engine) Resolve(ctx context.Context) error {
	e.mu.Lock()

	if e.record == nil || e.record.State != alert.StateActive {
		e.mu.Unlock()

		return ErrNotActive
	}
	e.mu.Unlock()

	e.finish(ctx, alert.StateResolved)

	return nil
}

// Acknowledge records that a contact has seen the active alert.
func (e *Engine) Acknowledge(ctx context.Context, contactID string) error {
	e.mu.Lock()

	if e.record == nil || e.record.State != alert.StateActive {
		e.mu.Unlock()

		return ErrNotActive
	}

	known := false

	for _, contact := range e.record.Contacts {
		if contact.ContactID == contactID {
			known = true

			break
		}
	}

	if !known {
		e.mu.Unlock()

		return ErrUnknownContact
	}

	for _, acknowledged := range e.record.AcknowledgedBy {
		if acknowledged == contactID {
			e.mu.Unlock()

			return nil
		}
	}

	e.record.AcknowledgedBy = append(e.record.AcknowledgedBy, contactID)
	e.mu.Unlock()

	logger.InfoKV(ctx, "Contact acknowledged alert", "contact_id", contactID)
	e.publish(eventbus.Event{Kind: eventbus.KindContactAcknowledged, ContactID: contactID})
	e.persist(ctx)

	return nil
}

// SentAlerts returns the user's persisted alerts, newest first.
func (e *Engine) SentAlerts(ctx context.Context) ([]*alert.Record, error) {
	if e.repo == nil {
		return nil, nil
	}

	records, err := e.repo.ListByUser(ctx, e.userID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	return records, nil
}

// Close tears down the engine's background activities at session end. The
// record keeps its state, an active alert is not cancelled by closing the
// app.
func (e *Engine) Close(ctx context.Context) {
	e.mu.Lock()
	timer := e.timer
	loop := e.loop
	lockoutTimer := e.lockoutTimer
	e.loop = nil
	e.mu.Unlock()

	if timer != nil {
		timer.Cancel()
	}

	if lockoutTimer != nil {
		lockoutTimer.Stop()
	}

	if loop != nil {
		loop.Stop()
	}

	e.persist(ctx)
	logger.Info(ctx, "Alert engine closed")
}
