package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inboxdb/pkg/models"
)

func openTestPebble(t *testing.T) *Pebble {
	t.Helper()
	p, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func testMessage(convo, primary, secondary, body string, at time.Time) models.Message {
	m := models.Message{
		ConversationID: convo,
		PrimaryID:      primary,
		SecondaryID:    secondary,
		Direction:      models.DirectionInbound,
		Kind:           "text",
		Body:           body,
		Status:         models.StatusSent,
		OccurredAt:     at.UTC(),
	}
	m.StatusHistory.Set(models.StatusSent, at.UTC())
	return m
}

func insertFilter(m models.Message) IdentityFilter {
	return IdentityFilter{
		PrimaryID:      m.PrimaryID,
		SecondaryID:    m.SecondaryID,
		ConversationID: m.ConversationID,
		Body:           m.Body,
		OccurredAt:     m.OccurredAt,
	}
}

func TestInsertIfAbsentDedupByPrimary(t *testing.T) {
	p := openTestPebble(t)
	ctx := context.Background()
	at := time.Unix(1754400000, 0)

	m := testMessage("111", "wamid.1", "", "hello", at)
	ok, err := p.InsertIfAbsent(ctx, insertFilter(m), m)
	require.NoError(t, err)
	require.True(t, ok)

	// same primary id, different body: still a duplicate
	dup := testMessage("111", "wamid.1", "", "edited", at.Add(time.Minute))
	ok, err = p.InsertIfAbsent(ctx, insertFilter(dup), dup)
	require.NoError(t, err)
	require.False(t, ok)

	msgs, err := p.ListMessages(ctx, "111", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", msgs[0].Body)
}

func TestInsertIfAbsentDedupBySecondary(t *testing.T) {
	p := openTestPebble(t)
	ctx := context.Background()
	at := time.Unix(1754400000, 0)

	m := testMessage("111", "", "ctx.9", "hello", at)
	ok, err := p.InsertIfAbsent(ctx, insertFilter(m), m)
	require.NoError(t, err)
	require.True(t, ok)

	dup := testMessage("111", "", "ctx.9", "hello again", at)
	ok, err = p.InsertIfAbsent(ctx, insertFilter(dup), dup)
	require.NoError(t, err)
	require.False(t, ok)
}

// With both ids absent the filter degrades to conversation + body +
// occurred-at. Identical content collides, different content does not.
func TestInsertIfAbsentWeakFallback(t *testing.T) {
	p := openTestPebble(t)
	ctx := context.Background()
	at := time.Unix(1754400000, 0)

	m := testMessage("111", "", "", "hello", at)
	ok, err := p.InsertIfAbsent(ctx, insertFilter(m), m)
	require.NoError(t, err)
	require.True(t, ok)

	dup := testMessage("111", "", "", "hello", at)
	ok, err = p.InsertIfAbsent(ctx, insertFilter(dup), dup)
	require.NoError(t, err)
	require.False(t, ok)

	other := testMessage("111", "", "", "different", at)
	ok, err = p.InsertIfAbsent(ctx, insertFilter(other), other)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestApplyStatusMergesHistory(t *testing.T) {
	p := openTestPebble(t)
	ctx := context.Background()
	at := time.Unix(1754400000, 0)

	m := testMessage("111", "wamid.1", "", "hello", at)
	_, err := p.InsertIfAbsent(ctx, insertFilter(m), m)
	require.NoError(t, err)

	deliveredAt := at.Add(time.Minute)
	matched, err := p.ApplyStatus(ctx, IdentityFilter{PrimaryID: "wamid.1"}, StatusUpdate{Status: models.StatusDelivered, At: deliveredAt})
	require.NoError(t, err)
	require.True(t, matched)

	got, err := p.GetMessage(ctx, "wamid.1")
	require.NoError(t, err)
	require.Equal(t, models.StatusDelivered, got.Status)
	require.True(t, got.StatusHistory.Delivered.Equal(deliveredAt))
	require.True(t, got.StatusHistory.Sent.Equal(at))
}

// An unknown status replaces the status field but gets no history slot.
func TestApplyStatusUnknownNotTracked(t *testing.T) {
	p := openTestPebble(t)
	ctx := context.Background()
	at := time.Unix(1754400000, 0)

	m := testMessage("111", "wamid.1", "", "hello", at)
	_, err := p.InsertIfAbsent(ctx, insertFilter(m), m)
	require.NoError(t, err)

	matched, err := p.ApplyStatus(ctx, IdentityFilter{PrimaryID: "wamid.1"}, StatusUpdate{Status: models.StatusUnknown, At: at.Add(time.Hour)})
	require.NoError(t, err)
	require.True(t, matched)

	got, err := p.GetMessage(ctx, "wamid.1")
	require.NoError(t, err)
	require.Equal(t, models.StatusUnknown, got.Status)
	require.True(t, got.StatusHistory.Delivered.IsZero())
	require.True(t, got.StatusHistory.Read.IsZero())
}

func TestApplyStatusNoMatch(t *testing.T) {
	p := openTestPebble(t)

	matched, err := p.ApplyStatus(context.Background(), IdentityFilter{PrimaryID: "wamid.ghost", SecondaryID: "wamid.ghost"}, StatusUpdate{Status: models.StatusRead, At: time.Now()})
	require.NoError(t, err)
	require.False(t, matched)
}

func TestGetMessageByEitherID(t *testing.T) {
	p := openTestPebble(t)
	ctx := context.Background()

	m := testMessage("111", "wamid.1", "ctx.9", "hello", time.Unix(1754400000, 0))
	_, err := p.InsertIfAbsent(ctx, insertFilter(m), m)
	require.NoError(t, err)

	byPrimary, err := p.GetMessage(ctx, "wamid.1")
	require.NoError(t, err)
	require.Equal(t, "hello", byPrimary.Body)

	bySecondary, err := p.GetMessage(ctx, "ctx.9")
	require.NoError(t, err)
	require.Equal(t, "hello", bySecondary.Body)

	_, err = p.GetMessage(ctx, "nope")
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestListMessagesOrderAndLimit(t *testing.T) {
	p := openTestPebble(t)
	ctx := context.Background()
	base := time.Unix(1754400000, 0)

	for i, body := range []string{"one", "two", "three"} {
		m := testMessage("111", "wamid."+body, "", body, base.Add(time.Duration(i)*time.Minute))
		_, err := p.InsertIfAbsent(ctx, insertFilter(m), m)
		require.NoError(t, err)
	}

	msgs, err := p.ListMessages(ctx, "111", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "one", msgs[0].Body)
	require.Equal(t, "three", msgs[2].Body)

	msgs, err = p.ListMessages(ctx, "111", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	msgs, err = p.ListMessages(ctx, "222", 0)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestListConversationsSummaries(t *testing.T) {
	p := openTestPebble(t)
	ctx := context.Background()
	base := time.Unix(1754400000, 0)

	a1 := testMessage("111", "wamid.a1", "", "first", base)
	a1.DisplayName = "Ravi Kumar"
	a2 := testMessage("111", "wamid.a2", "", "latest", base.Add(time.Hour))
	b1 := testMessage("222", "wamid.b1", "", "other chat", base.Add(2*time.Hour))
	for _, m := range []models.Message{a1, a2, b1} {
		_, err := p.InsertIfAbsent(ctx, insertFilter(m), m)
		require.NoError(t, err)
	}

	convos, err := p.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convos, 2)

	// most recent conversation first
	require.Equal(t, "222", convos[0].ConversationID)
	require.Equal(t, "111", convos[1].ConversationID)
	require.EqualValues(t, 2, convos[1].Messages)
	require.Equal(t, "latest", convos[1].LastBody)
	require.Equal(t, "Ravi Kumar", convos[1].DisplayName)
}

func TestSoftDeleteAndPurge(t *testing.T) {
	p := openTestPebble(t)
	ctx := context.Background()
	at := time.Unix(1754400000, 0)

	m := testMessage("111", "wamid.1", "ctx.9", "hello", at)
	_, err := p.InsertIfAbsent(ctx, insertFilter(m), m)
	require.NoError(t, err)

	ok, err := p.SoftDelete(ctx, "wamid.1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.SoftDelete(ctx, "wamid.ghost")
	require.NoError(t, err)
	require.False(t, ok)

	// tombstoned records disappear from listings and point lookups
	msgs, err := p.ListMessages(ctx, "111", 0)
	require.NoError(t, err)
	require.Empty(t, msgs)
	_, err = p.GetMessage(ctx, "wamid.1")
	require.ErrorIs(t, err, ErrNoMatch)

	// a second delete of the same record is a no-op
	ok, err = p.SoftDelete(ctx, "wamid.1")
	require.NoError(t, err)
	require.False(t, ok)

	// a cutoff in the past purges nothing
	n, err := p.PurgeDeleted(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = p.PurgeDeleted(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// purge removes the id indexes with the record
	_, err = p.GetMessage(ctx, "wamid.1")
	require.ErrorIs(t, err, ErrNoMatch)
	_, err = p.GetMessage(ctx, "ctx.9")
	require.ErrorIs(t, err, ErrNoMatch)
}

// Two records in the same conversation with the same occurred_at must
// both survive when they are inserted in different process runs.
func TestInsertSequenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	at := time.Unix(1754400000, 0)

	p, err := OpenPebble(dir)
	require.NoError(t, err)
	a := testMessage("111", "wamid.A", "", "first", at)
	ok, err := p.InsertIfAbsent(ctx, insertFilter(a), a)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, p.Close())

	p, err = OpenPebble(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	b := testMessage("111", "wamid.B", "", "second", at)
	ok, err = p.InsertIfAbsent(ctx, insertFilter(b), b)
	require.NoError(t, err)
	require.True(t, ok)

	msgs, err := p.ListMessages(ctx, "111", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	gotA, err := p.GetMessage(ctx, "wamid.A")
	require.NoError(t, err)
	require.Equal(t, "first", gotA.Body)
	gotB, err := p.GetMessage(ctx, "wamid.B")
	require.NoError(t, err)
	require.Equal(t, "second", gotB.Body)
}

func TestPurgeDeletedCanceledContext(t *testing.T) {
	p := openTestPebble(t)
	ctx := context.Background()

	m := testMessage("111", "wamid.1", "", "bye", time.Unix(1754400000, 0))
	_, err := p.InsertIfAbsent(ctx, insertFilter(m), m)
	require.NoError(t, err)
	ok, err := p.SoftDelete(ctx, "wamid.1")
	require.NoError(t, err)
	require.True(t, ok)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	n, err := p.PurgeDeleted(canceled, time.Now().Add(time.Hour))
	require.Error(t, err)
	require.Zero(t, n)

	// nothing was removed; a later run still purges the tombstone
	n, err = p.PurgeDeleted(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSystemKeysRoundTrip(t *testing.T) {
	p := openTestPebble(t)

	_, found, err := p.GetSystemKey("version")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, p.SetSystemKey("version", []byte("1.2.3")))
	v, found, err := p.GetSystemKey("version")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1.2.3", v)

	require.NoError(t, p.DeleteSystemKey("version"))
	_, found, err = p.GetSystemKey("version")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRebuildIndexes(t *testing.T) {
	p := openTestPebble(t)
	ctx := context.Background()

	m := testMessage("111", "wamid.1", "ctx.9", "hello", time.Unix(1754400000, 0))
	_, err := p.InsertIfAbsent(ctx, insertFilter(m), m)
	require.NoError(t, err)

	// wipe the index keyspace to simulate a format change
	require.NoError(t, p.db.DeleteRange([]byte("idx:"), []byte("idx;"), nil))
	_, err = p.GetMessage(ctx, "wamid.1")
	require.ErrorIs(t, err, ErrNoMatch)

	n, err := p.RebuildIndexes(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := p.GetMessage(ctx, "wamid.1")
	require.NoError(t, err)
	require.Equal(t, "hello", got.Body)
	got, err = p.GetMessage(ctx, "ctx.9")
	require.NoError(t, err)
	require.Equal(t, "hello", got.Body)
}
