package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks defaulting and rejection rules for Config.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Nil configuration.
	require.Error(t, Validate(nil))

	// Empty configuration gets stock timings.
	cfg := new(Config)
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultCountdown, cfg.Countdown)
	require.Equal(t, DefaultTickInterval, cfg.TickInterval)
	require.Equal(t, DefaultBroadcastPeriod, cfg.BroadcastPeriod)
	require.Equal(t, DefaultMaxCancelAttempts, cfg.MaxCancelAttempts)
	require.Equal(t, DefaultHistoryFilename, cfg.HistoryFile)

	// Negative lockout delay is rejected.
	cfg = &Config{LockoutAutoCancelDelay: -time.Second}
	require.Error(t, Validate(cfg))
}

// TestDefault returns a fully-populated configuration.
func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, Validate(cfg))
	require.True(t, cfg.RequireSecret)
	require.Equal(t, DefaultLockoutAutoCancelDelay, cfg.LockoutAutoCancelDelay)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := &Config{
		Countdown:         5 * time.Second,
		BroadcastPeriod:   10 * time.Second,
		MaxCancelAttempts: 4,
		RequireSecret:     true,
		HistoryFile:       filepath.Join(dir, "history.json"),
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Countdown, loaded.Countdown)
	require.Equal(t, cfg.BroadcastPeriod, loaded.BroadcastPeriod)
	require.Equal(t, cfg.MaxCancelAttempts, loaded.MaxCancelAttempts)
	require.Equal(t, cfg.HistoryFile, loaded.HistoryFile)

	// Load of a missing file fails.
	_, err = Load(filepath.Join(dir, "nope.yaml"))
	require.Error(t, err)
}
