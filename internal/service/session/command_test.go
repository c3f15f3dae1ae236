package session

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guardian-safety/alert-engine/internal/config"
)

// TestParseContacts covers the name:address flag format.
func TestParseContacts(t *testing.T) {
	t.Parallel()

	contacts, err := parseContacts([]string{"Alice:+100", "Bob:+200"})
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	require.Equal(t, "c-1", contacts[0].ContactID)
	require.Equal(t, "Alice", contacts[0].DisplayName)
	require.Equal(t, "+100", contacts[0].ChannelAddress)
	require.Equal(t, 2, contacts[1].Priority)

	_, err = parseContacts(nil)
	require.ErrorIs(t, err, ErrNoContacts)

	_, err = parseContacts([]string{"missing-address"})
	require.Error(t, err)

	_, err = parseContacts([]string{":+100"})
	require.Error(t, err)
}

// TestLoadConfigFallsBackToDefaults only substitutes defaults when no
// explicit path was given.
func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

// TestRunEndsWithInput drives a short scripted session end to end.
func TestRunEndsWithInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "settings.yaml")

	cfg := config.Default()
	cfg.Countdown = 10 * time.Second
	cfg.TickInterval = time.Second
	cfg.BroadcastPeriod = time.Second
	require.NoError(t, config.Save(configPath, cfg))

	var output strings.Builder

	input := strings.NewReader("arm\nabort\nstatus\nhistory\nquit\n")

	err := Run(context.Background(), &Options{
		ConfigPath:  configPath,
		Contacts:    []string{"Alice:+100"},
		Secret:      "guardian",
		HistoryFile: filepath.Join(dir, "history.json"),
		Input:       input,
		Output:      &output,
	})
	require.NoError(t, err)
	require.Contains(t, output.String(), "no alert in progress")
	require.Contains(t, output.String(), "no alerts on record")
}
