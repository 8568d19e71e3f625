package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inboxdb/pkg/config"
	"inboxdb/pkg/models"
	"inboxdb/pkg/store"
)

func seedDeleted(t *testing.T, st store.Store) {
	t.Helper()
	m := models.Message{
		ConversationID: "111",
		PrimaryID:      "wamid.1",
		Direction:      models.DirectionInbound,
		Kind:           "text",
		Body:           "bye",
		Status:         models.StatusSent,
		OccurredAt:     time.Now().UTC().Add(-time.Hour),
	}
	_, err := st.InsertIfAbsent(context.Background(), store.IdentityFilter{PrimaryID: m.PrimaryID}, m)
	require.NoError(t, err)
	ok, err := st.SoftDelete(context.Background(), "wamid.1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRunOncePurgesExpiredTombstones(t *testing.T) {
	st, err := store.OpenPebble(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	seedDeleted(t, st)

	markDir := t.TempDir()

	// zero period: everything tombstoned before now is eligible
	require.NoError(t, RunOnce(context.Background(), st, 0, false, markDir))

	_, err = st.GetMessage(context.Background(), "wamid.1")
	require.ErrorIs(t, err, store.ErrNoMatch)

	mark, err := os.ReadFile(filepath.Join(markDir, "last_run"))
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339, string(mark[:len(mark)-1]))
	require.NoError(t, err)
}

func TestRunOnceKeepsRecentTombstones(t *testing.T) {
	st, err := store.OpenPebble(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	seedDeleted(t, st)

	require.NoError(t, RunOnce(context.Background(), st, 30*24*time.Hour, false, ""))

	// the tombstone is still there: an immediate-cutoff purge removes it
	n, err := st.PurgeDeleted(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRunOnceDryRunTouchesNothing(t *testing.T) {
	st, err := store.OpenPebble(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	seedDeleted(t, st)

	markDir := t.TempDir()
	require.NoError(t, RunOnce(context.Background(), st, 0, true, markDir))

	// the tombstone survived the dry run
	n, err := st.PurgeDeleted(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = os.Stat(filepath.Join(markDir, "last_run"))
	require.True(t, os.IsNotExist(err))
}

func TestStartDisabledIsNoOp(t *testing.T) {
	st, err := store.OpenPebble(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cancel, err := Start(context.Background(), st, config.RetentionConfig{Enabled: false})
	require.NoError(t, err)
	cancel()
}

func TestStartRejectsBadCron(t *testing.T) {
	st, err := store.OpenPebble(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	_, err = Start(context.Background(), st, config.RetentionConfig{Enabled: true, Cron: "not a cron"})
	require.Error(t, err)
}
