package progressor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"inboxdb/pkg/logger"
	"inboxdb/pkg/store"
)

const (
	systemVersionKey    = "version"
	systemInProgressKey = "migration_in_progress"
)

// versionedStore is the system-key surface a backend must offer for
// version-gated migrations. Only the embedded backend implements it;
// server-side backends keep their schema current through indexes.
type versionedStore interface {
	GetSystemKey(name string) (string, bool, error)
	SetSystemKey(name string, val []byte) error
	DeleteSystemKey(name string) error
	RebuildIndexes(ctx context.Context) (int, error)
}

// Sync performs upgrade work between versions. Edit in-place for
// migration logic.
func Sync(ctx context.Context, st versionedStore, from, to string) error {
	logger.Info("progressor_sync_start", zap.String("from", from), zap.String("to", to))

	// Migration: re-derive the id index keyspace from the stored records.
	// Safe to run repeatedly; it also clears index entries left dangling
	// by older purge behavior.
	n, err := st.RebuildIndexes(ctx)
	if err != nil {
		logger.Error("progressor_rebuild_indexes_failed", zap.Error(err))
		return err
	}
	logger.Info("progressor_indexes_rebuilt", zap.Int("records", n))

	logger.Info("progressor_sync_done", zap.String("from", from), zap.String("to", to))
	return nil
}

// Run checks for a version change and runs Sync if needed.
// Returns (invoked, error): invoked is true if Sync ran.
func Run(ctx context.Context, s store.Store, newVersion string) (bool, error) {
	st, ok := s.(versionedStore)
	if !ok {
		logger.Debug("progressor_skipped", zap.String("reason", "backend has no system keyspace"))
		return false, nil
	}

	stored, _, err := st.GetSystemKey(systemVersionKey)
	if err != nil {
		logger.Error("progressor_read_version_failed", zap.Error(err))
		return false, err
	}
	logger.Info("progressor_version_check", zap.String("stored", stored), zap.String("running", newVersion))
	if stored == newVersion {
		logger.Info("progressor_noop", zap.String("version", newVersion))
		return false, nil
	}

	marker := map[string]string{
		"from":       stored,
		"to":         newVersion,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}
	mb, _ := json.Marshal(marker)
	if err := st.SetSystemKey(systemInProgressKey, mb); err != nil {
		logger.Error("progressor_write_inprogress_failed", zap.Error(err))
		return true, fmt.Errorf("failed to write in-progress marker: %w", err)
	}

	logger.Info("progressor_start_sync", zap.String("from", stored), zap.String("to", newVersion))
	if err := Sync(ctx, st, stored, newVersion); err != nil {
		logger.Error("progressor_sync_failed", zap.String("from", stored), zap.String("to", newVersion), zap.Error(err))
		return true, err
	}

	if err := st.SetSystemKey(systemVersionKey, []byte(newVersion)); err != nil {
		logger.Error("progressor_persist_version_failed", zap.String("version", newVersion), zap.Error(err))
		return true, fmt.Errorf("failed to persist new version: %w", err)
	}
	if err := st.DeleteSystemKey(systemInProgressKey); err != nil {
		logger.Error("progressor_delete_inprogress_failed", zap.Error(err))
	}

	logger.Info("progressor_version_persisted", zap.String("version", newVersion))
	return true, nil
}
