package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTimeEpochSeconds(t *testing.T) {
	got, ok := NormalizeTime(json.RawMessage(`1700000000`))
	require.True(t, ok)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), got)

	// quoted numeric strings behave the same
	got, ok = NormalizeTime(json.RawMessage(`"1700000000"`))
	require.True(t, ok)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), got)
}

func TestNormalizeTimeEpochMillis(t *testing.T) {
	got, ok := NormalizeTime(json.RawMessage(`1700000000000`))
	require.True(t, ok)
	require.Equal(t, time.UnixMilli(1700000000000).UTC(), got)
}

func TestNormalizeTimeDateStrings(t *testing.T) {
	got, ok := NormalizeTime(json.RawMessage(`"2025-08-06T12:00:00Z"`))
	require.True(t, ok)
	require.Equal(t, time.Date(2025, 8, 6, 12, 0, 0, 0, time.UTC), got)

	got, ok = NormalizeTime(json.RawMessage(`"2025-08-06 12:00:00"`))
	require.True(t, ok)
	require.Equal(t, time.Date(2025, 8, 6, 12, 0, 0, 0, time.UTC), got)

	got, ok = NormalizeTime(json.RawMessage(`"2025-08-06"`))
	require.True(t, ok)
	require.Equal(t, time.Date(2025, 8, 6, 0, 0, 0, 0, time.UTC), got)
}

func TestNormalizeTimeAbsent(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage(`null`), json.RawMessage(`""`), json.RawMessage(`"soon"`)} {
		_, ok := NormalizeTime(raw)
		require.False(t, ok, "raw %q", string(raw))
	}
}
