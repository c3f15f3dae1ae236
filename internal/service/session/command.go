package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/guardian-safety/alert-engine/internal/broadcast"
	"github.com/guardian-safety/alert-engine/internal/config"
	"github.com/guardian-safety/alert-engine/internal/domain/alert"
	"github.com/guardian-safety/alert-engine/internal/engine"
	"github.com/guardian-safety/alert-engine/internal/eventbus"
	"github.com/guardian-safety/alert-engine/internal/gate"
	"github.com/guardian-safety/alert-engine/internal/logger"
	"github.com/guardian-safety/alert-engine/internal/notifier"
	"github.com/guardian-safety/alert-engine/internal/repository/history"
)

// Options controls the interactive alert session process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Contacts lists emergency contacts as "name:address" pairs.
	Contacts []string
	// Secret is the cancellation secret for this session.
	Secret string
	// HistoryFile overrides the alert history path from the config.
	HistoryFile string
	// Input is the command stream, defaults to stdin.
	Input io.Reader
	// Output receives prompts and contact messages, defaults to stdout.
	Output io.Writer
}

// Simulated walk start near the city centre used by the demo provider.
const (
	simStartLatitude  = 55.751244
	simStartLongitude = 37.618423
)

// ErrNoContacts indicates the session was started without any contacts.
var ErrNoContacts = errors.New("at least one contact is required, use --contact")

// Run wires the engine together and drives it from an interactive command
// loop until the input ends or the context is cancelled.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "alert-session")

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}

	contacts, err := parseContacts(opts.Contacts)
	if err != nil {
		return err
	}

	historyFile := cfg.HistoryFile
	if opts.HistoryFile != "" {
		historyFile = opts.HistoryFile
	}

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	input := opts.Input
	if input == nil {
		input = os.Stdin
	}

	eng, err := engine.New(engine.Settings{
		UserID:    detectUserID(),
		Config:    cfg,
		Directory: notifier.NewStaticDirectory(contacts),
		Notifier:  notifier.New(notifier.NewConsoleChannel(output)),
		Provider:  broadcast.NewSimulatedProvider(simStartLatitude, simStartLongitude, time.Now().UnixNano()),
		Secrets:   gate.NewStaticSecretStore(opts.Secret),
		History:   history.NewFileRepository(historyFile),
	})
	if err != nil {
		return fmt.Errorf("initialise engine: %w", err)
	}

	defer eng.Close(ctx)

	unsubscribe := eng.Bus().Subscribe(eventbus.SinkFunc(func(event eventbus.Event) {
		logEvent(ctx, event)
	}), eventbus.DefaultQueueSize)
	defer unsubscribe()

	logger.InfoKV(ctx, "Alert session started",
		"contacts", len(contacts), "countdown", cfg.Countdown, "history_file", historyFile)
	printHelp(output)

	return commandLoop(ctx, eng, input, output)
}

// loadConfig reads the settings file. Without an explicit path a missing
// default file falls back to built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}

	if path == "" && errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}

	return nil, err
}

// commandLoop reads one command per line and applies it to the engine.
//
//nolint:cyclop // Flat command dispatch, one case per user command.
func commandLoop(ctx context.Context, eng *engine.Engine, input io.Reader, output io.Writer) error {
	scanner := bufio.NewScanner(input)

	for {
		fmt.Fprintf(output, "[%s] > ", eng.State())

		if !scanner.Scan() {
			return scanner.Err()
		}

		if ctx.Err() != nil {
			return nil
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		command, args := fields[0], fields[1:]

		var err error

		switch command {
		case "arm":
			_, err = eng.Arm(ctx, alert.ReasonManual)
		case "abort":
			err = eng.CancelDuringCountdown(ctx)
		case "cancel":
			err = eng.RequestCancellation(ctx, strings.Join(args, " "))
		case "resolve":
			err = eng.Resolve(ctx)
		case "ack":
			err = acknowledge(ctx, eng, args)
		case "status":
			printStatus(output, eng)
		case "history":
			err = printHistory(ctx, output, eng)
		case "help":
			printHelp(output)
		case "quit", "exit":
			return nil
		default:
			fmt.Fprintf(output, "unknown command %q, try 'help'\n", command)
		}

		if err != nil {
			fmt.Fprintln(output, "error:", err)
		}
	}
}

// acknowledge records a contact acknowledgement from the command line.
func acknowledge(ctx context.Context, eng *engine.Engine, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: ack <contact-id>")
	}

	return eng.Acknowledge(ctx, args[0])
}

// printStatus dumps the current episode to the output.
func printStatus(output io.Writer, eng *engine.Engine) {
	record := eng.Record()
	if record == nil {
		fmt.Fprintln(output, "no alert in progress")

		return
	}

	fmt.Fprintf(output, "alert %s state=%s delivered=%d/%d acknowledged=%d\n",
		record.ID, record.State, record.DeliveredCount(), len(record.Attempts),
		len(record.AcknowledgedBy))

	if record.LastLocation != nil {
		fmt.Fprintf(output, "last location: %.5f, %.5f (±%.0fm) at %s\n",
			record.LastLocation.Latitude, record.LastLocation.Longitude,
			record.LastLocation.AccuracyMeters,
			record.LastLocation.CapturedAt.Format(time.RFC3339))
	}
}

// printHistory lists the persisted alerts of the session user.
func printHistory(ctx context.Context, output io.Writer, eng *engine.Engine) error {
	records, err := eng.SentAlerts(ctx)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(output, "no alerts on record")

		return nil
	}

	for _, record := range records {
		fmt.Fprintf(output, "%s  %-9s  %s  contacts=%d delivered=%d\n",
			record.CreatedAt.Format(time.RFC3339), record.State, record.ID,
			len(record.Contacts), record.DeliveredCount())
	}

	return nil
}

// printHelp lists the interactive commands.
func printHelp(output io.Writer) {
	fmt.Fprint(output, `commands:
  arm              start the alert countdown
  abort            stop the countdown before it expires
  cancel <secret>  cancel an active alert with the secret
  resolve          close an active alert as resolved
  ack <contact>    record a contact acknowledgement
  status           show the current alert
  history          list persisted alerts
  quit             leave the session
`)
}

// logEvent mirrors bus traffic into the structured log.
func logEvent(ctx context.Context, event eventbus.Event) {
	switch event.Kind {
	case eventbus.KindStateChanged:
		logger.InfoKV(ctx, "Alert state changed", "alert_id", event.AlertID, "state", event.State)
	case eventbus.KindCountdownTick:
		logger.InfoKV(ctx, "Countdown", "seconds_left", event.SecondsLeft)
	case eventbus.KindLocationUpdated:
		logger.DebugKV(ctx, "Location updated", "alert_id", event.AlertID)
	case eventbus.KindNotificationLogged:
		if event.Attempt != nil {
			logger.InfoKV(ctx, "Notification attempt", "contact_id", event.Attempt.ContactID,
				"channel", event.Attempt.Channel, "outcome", event.Attempt.Outcome)
		}
	case eventbus.KindGateLocked:
		logger.Warn(ctx, "Cancellation gate locked")
	case eventbus.KindContactAcknowledged:
		logger.InfoKV(ctx, "Contact acknowledged", "contact_id", event.ContactID)
	}
}

// parseContacts turns "name:address" flags into contact references.
func parseContacts(raw []string) ([]alert.ContactRef, error) {
	if len(raw) == 0 {
		return nil, ErrNoContacts
	}

	contacts := make([]alert.ContactRef, 0, len(raw))

	for i, entry := range raw {
		name, address, found := strings.Cut(entry, ":")
		if !found || name == "" || address == "" {
			return nil, fmt.Errorf("invalid contact %q, expected name:address", entry)
		}

		contacts = append(contacts, alert.ContactRef{
			ContactID:      fmt.Sprintf("c-%d", i+1),
			DisplayName:    name,
			ChannelAddress: address,
			Priority:       i + 1,
		})
	}

	return contacts, nil
}

// detectUserID resolves the OS user for record ownership.
func detectUserID() string {
	if current, err := user.Current(); err == nil && current.Username != "" {
		return current.Username
	}

	return "local-user"
}
