package store

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"inboxdb/pkg/logger"
	"inboxdb/pkg/models"
)

// System keys live outside the record keyspace under a "system:" prefix.
// The migration runner uses them to track the schema version.

func systemKey(name string) []byte {
	return []byte("system:" + name)
}

// GetSystemKey reads a system value; found=false when absent.
func (p *Pebble) GetSystemKey(name string) (string, bool, error) {
	if p.db == nil {
		return "", false, ErrNotReady
	}
	v, ok, err := p.getValue(systemKey(name))
	return string(v), ok, err
}

// SetSystemKey writes a system value synced.
func (p *Pebble) SetSystemKey(name string, val []byte) error {
	if p.db == nil {
		return ErrNotReady
	}
	return p.db.Set(systemKey(name), val, pebble.Sync)
}

// DeleteSystemKey removes a system value.
func (p *Pebble) DeleteSystemKey(name string) error {
	if p.db == nil {
		return ErrNotReady
	}
	return p.db.Delete(systemKey(name), pebble.Sync)
}

// RebuildIndexes rescans every record and rewrites its id index entries.
// Idempotent; dangling index entries for purged records are dropped
// first. Returns the number of records indexed.
func (p *Pebble) RebuildIndexes(ctx context.Context) (int, error) {
	if p.db == nil {
		return 0, ErrNotReady
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	wb := p.db.NewBatch()

	// drop the whole index keyspace, then re-derive it from the records
	if err := wb.DeleteRange([]byte("idx:"), []byte("idx;"), nil); err != nil {
		return 0, err
	}

	prefix := []byte("convo:")
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	indexed := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Warn("skipping_invalid_record", zap.ByteString("key", iter.Key()), zap.Error(err))
			continue
		}
		key := append([]byte(nil), iter.Key()...)
		if m.PrimaryID != "" {
			if err := wb.Set(primaryKey(m.PrimaryID), key, nil); err != nil {
				return 0, err
			}
		}
		if m.SecondaryID != "" {
			if err := wb.Set(append(secondaryPrefix(m.SecondaryID), key...), key, nil); err != nil {
				return 0, err
			}
		}
		indexed++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if err := p.db.Apply(wb, pebble.Sync); err != nil {
		return 0, err
	}
	return indexed, nil
}
