package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guardian-safety/alert-engine/internal/domain/alert"
)

// newRecord builds a minimal terminal record for tests.
func newRecord(id, userID string, createdAt time.Time) *alert.Record {
	return &alert.Record{
		ID:        id,
		UserID:    userID,
		State:     alert.StateResolved,
		Reason:    alert.ReasonManual,
		CreatedAt: createdAt,
		Contacts: []alert.ContactRef{
			{ContactID: "c-1", DisplayName: "Alice", ChannelAddress: "+100", Priority: 1},
		},
	}
}

// TestSaveAndGetRoundtrip persists a record and reads it back.
func TestSaveAndGetRoundtrip(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "history.json"))
	ctx := context.Background()

	record := newRecord("alert-1", "user-1", time.Now().UTC().Truncate(time.Second))
	record.LastLocation = &alert.LocationSample{
		Latitude:       1,
		Longitude:      2,
		AccuracyMeters: 3,
		CapturedAt:     record.CreatedAt,
	}

	require.NoError(t, repo.Save(ctx, record))

	loaded, err := repo.GetByID(ctx, "alert-1")
	require.NoError(t, err)
	require.Equal(t, record, loaded)

	// Saved copies are detached from the caller's record.
	record.Contacts[0].DisplayName = "Mallory"

	loaded, err = repo.GetByID(ctx, "alert-1")
	require.NoError(t, err)
	require.Equal(t, "Alice", loaded.Contacts[0].DisplayName)
}

// TestGetMissingRecord returns ErrNotFound.
func TestGetMissingRecord(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "history.json"))

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

// TestListByUserOrdersNewestFirst filters by user and sorts by creation time.
func TestListByUserOrdersNewestFirst(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "history.json"))
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Save(ctx, newRecord("alert-1", "user-1", base.Add(-2*time.Hour))))
	require.NoError(t, repo.Save(ctx, newRecord("alert-2", "user-1", base)))
	require.NoError(t, repo.Save(ctx, newRecord("alert-3", "user-2", base.Add(-time.Hour))))

	records, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "alert-2", records[0].ID)
	require.Equal(t, "alert-1", records[1].ID)

	records, err = repo.ListByUser(ctx, "user-3")
	require.NoError(t, err)
	require.Empty(t, records)
}

// TestSaveReplacesExisting overwrites a record with the same ID.
func TestSaveReplacesExisting(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "history.json"))
	ctx := context.Background()

	record := newRecord("alert-1", "user-1", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, repo.Save(ctx, record))

	record.State = alert.StateCancelled
	require.NoError(t, repo.Save(ctx, record))

	loaded, err := repo.GetByID(ctx, "alert-1")
	require.NoError(t, err)
	require.Equal(t, alert.StateCancelled, loaded.State)

	records, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
}
