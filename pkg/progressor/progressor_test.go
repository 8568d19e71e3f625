package progressor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inboxdb/pkg/models"
	"inboxdb/pkg/store"
)

func openStore(t *testing.T) *store.Pebble {
	t.Helper()
	p, err := store.OpenPebble(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestRunPersistsVersion(t *testing.T) {
	p := openStore(t)
	ctx := context.Background()

	invoked, err := Run(ctx, p, "1.0.0")
	require.NoError(t, err)
	require.True(t, invoked)

	v, found, err := p.GetSystemKey("version")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1.0.0", v)

	// the in-progress marker is cleared on success
	_, found, err = p.GetSystemKey("migration_in_progress")
	require.NoError(t, err)
	require.False(t, found)

	// same version again is a no-op
	invoked, err = Run(ctx, p, "1.0.0")
	require.NoError(t, err)
	require.False(t, invoked)

	invoked, err = Run(ctx, p, "1.1.0")
	require.NoError(t, err)
	require.True(t, invoked)
}

func TestRunRebuildsIndexes(t *testing.T) {
	p := openStore(t)
	ctx := context.Background()

	m := models.Message{
		ConversationID: "111",
		PrimaryID:      "wamid.1",
		Direction:      models.DirectionInbound,
		Kind:           "text",
		Body:           "hello",
		Status:         models.StatusSent,
		OccurredAt:     time.Unix(1754400000, 0).UTC(),
	}
	_, err := p.InsertIfAbsent(ctx, store.IdentityFilter{PrimaryID: m.PrimaryID}, m)
	require.NoError(t, err)

	_, err = Run(ctx, p, "1.0.0")
	require.NoError(t, err)

	got, err := p.GetMessage(ctx, "wamid.1")
	require.NoError(t, err)
	require.Equal(t, "hello", got.Body)
}

// Backends without a system keyspace are skipped, not failed.
type plainStore struct{ store.Store }

func TestRunSkipsUnversionedBackend(t *testing.T) {
	invoked, err := Run(context.Background(), plainStore{}, "1.0.0")
	require.NoError(t, err)
	require.False(t, invoked)
}
