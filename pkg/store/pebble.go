package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"inboxdb/pkg/logger"
	"inboxdb/pkg/models"

	"github.com/cockroachdb/pebble"
)

// Pebble is the embedded backend. Records are stored under conversation-
// ordered keys; provider ids map to record keys through index entries so
// identity lookups never scan. Atomicity of insert-if-absent and status
// merges comes from a store-level mutex around the read-modify-write,
// committed as a single synced batch.
type Pebble struct {
	db   *pebble.DB
	path string

	mu sync.Mutex
	// seq disambiguates records sharing a conversation and instant. It is
	// persisted with every insert and recovered on open; a fresh in-memory
	// counter would reuse record keys across restarts.
	seq uint64
}

// seqSystemKey holds the last issued insert sequence number.
const seqSystemKey = "insert_seq"

// OpenPebble opens (or creates) a Pebble database at the given path.
func OpenPebble(path string) (*Pebble, error) {
	logger.Info("opening_pebble_db", zap.String("path", path))
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	p := &Pebble{db: db, path: path}
	raw, found, err := p.getValue(systemKey(seqSystemKey))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if found {
		n, perr := strconv.ParseUint(string(raw), 10, 64)
		if perr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("invalid insert sequence %q: %w", raw, perr)
		}
		p.seq = n
	}
	return p, nil
}

// Close closes the underlying pebble DB.
func (p *Pebble) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	logger.Info("pebble_closed", zap.String("path", p.path))
	return err
}

// Key layout:
//
//	convo:<conversationID>:msg:<unix_nano_padded>-<seq>  -> record JSON
//	idx:primary:<primaryID>                              -> record key (unique, sparse)
//	idx:secondary:<secondaryID>:<record key>             -> record key (non-unique)
func msgKey(conversationID string, at time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("convo:%s:msg:%020d-%06d", conversationID, at.UTC().UnixNano(), seq))
}

func convoPrefix(conversationID string) []byte {
	return []byte("convo:" + conversationID + ":msg:")
}

func primaryKey(id string) []byte {
	return []byte("idx:primary:" + id)
}

func secondaryPrefix(id string) []byte {
	return []byte("idx:secondary:" + id + ":")
}

// getValue copies the value stored under key, or returns found=false.
func (p *Pebble) getValue(key []byte) ([]byte, bool, error) {
	v, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, true, nil
}

// firstWithPrefix returns the value of the first key with the given
// prefix, or found=false.
func (p *Pebble) firstWithPrefix(prefix []byte) ([]byte, bool, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, false, err
	}
	defer iter.Close()
	if iter.SeekGE(prefix); iter.Valid() && bytes.HasPrefix(iter.Key(), prefix) {
		v := append([]byte(nil), iter.Value()...)
		return v, true, iter.Error()
	}
	return nil, false, iter.Error()
}

// resolveLocked maps an identity filter to a record key. Caller holds mu.
func (p *Pebble) resolveLocked(f IdentityFilter) ([]byte, bool, error) {
	if f.PrimaryID != "" {
		if k, ok, err := p.getValue(primaryKey(f.PrimaryID)); err != nil || ok {
			return k, ok, err
		}
	}
	if f.SecondaryID != "" {
		if k, ok, err := p.firstWithPrefix(secondaryPrefix(f.SecondaryID)); err != nil || ok {
			return k, ok, err
		}
	}
	if !f.Weak() {
		return nil, false, nil
	}
	// Content fallback: scan the conversation and compare body + time.
	// Two distinct messages with identical body and timestamp collide
	// here, hence the counter.
	weakFilterTotal.Inc()
	logger.Warn("weak_identity_filter",
		zap.String("conversation", f.ConversationID),
		zap.Time("occurred_at", f.OccurredAt),
	)
	prefix := convoPrefix(f.ConversationID)
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, false, err
	}
	defer iter.Close()
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if json.Unmarshal(iter.Value(), &m) != nil {
			continue
		}
		if m.Body == f.Body && m.OccurredAt.Equal(f.OccurredAt) {
			k := append([]byte(nil), iter.Key()...)
			return k, true, iter.Error()
		}
	}
	return nil, false, iter.Error()
}

// InsertIfAbsent writes rec and its id indexes in one synced batch unless
// a record already matches f. First write wins for creation fields.
func (p *Pebble) InsertIfAbsent(ctx context.Context, f IdentityFilter, rec models.Message) (bool, error) {
	if p.db == nil {
		return false, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !f.Empty() {
		if _, found, err := p.resolveLocked(f); err != nil {
			return false, err
		} else if found {
			duplicateTotal.Inc()
			return false, nil
		}
	}

	p.seq++
	key := msgKey(rec.ConversationID, rec.OccurredAt, p.seq)
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal message: %w", err)
	}

	wb := p.db.NewBatch()
	if err := wb.Set(key, data, nil); err != nil {
		return false, err
	}
	if rec.PrimaryID != "" {
		if err := wb.Set(primaryKey(rec.PrimaryID), key, nil); err != nil {
			return false, err
		}
	}
	if rec.SecondaryID != "" {
		sk := append(secondaryPrefix(rec.SecondaryID), key...)
		if err := wb.Set(sk, key, nil); err != nil {
			return false, err
		}
	}
	if err := wb.Set(systemKey(seqSystemKey), []byte(strconv.FormatUint(p.seq, 10)), nil); err != nil {
		return false, err
	}
	if err := p.db.Apply(wb, pebble.Sync); err != nil {
		logger.Error("insert_failed", zap.String("conversation", rec.ConversationID), zap.Error(err))
		return false, err
	}
	insertedTotal.Inc()
	logger.Debug("message_inserted",
		zap.String("conversation", rec.ConversationID),
		zap.String("primary_id", rec.PrimaryID),
		zap.String("secondary_id", rec.SecondaryID),
	)
	return true, nil
}

// ApplyStatus merges u into the first record matching f. Monotonicity is
// deliberately not enforced: a late "sent" event overwrites "read".
func (p *Pebble) ApplyStatus(ctx context.Context, f IdentityFilter, u StatusUpdate) (bool, error) {
	if p.db == nil {
		return false, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	key, found, err := p.resolveLocked(f)
	if err != nil {
		return false, err
	}
	if !found {
		statusDroppedTotal.Inc()
		return false, nil
	}
	raw, ok, err := p.getValue(key)
	if err != nil || !ok {
		return false, err
	}
	var m models.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return false, fmt.Errorf("invalid stored message: %w", err)
	}
	m.Status = u.Status
	if u.Status.Known() {
		m.StatusHistory.Set(u.Status, u.At)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return false, fmt.Errorf("marshal message: %w", err)
	}
	if err := p.db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("status_apply_failed", zap.String("primary_id", m.PrimaryID), zap.Error(err))
		return false, err
	}
	statusAppliedTotal.Inc()
	return true, nil
}

// GetMessage returns the record whose primary or secondary id equals id.
func (p *Pebble) GetMessage(ctx context.Context, id string) (models.Message, error) {
	var m models.Message
	if p.db == nil {
		return m, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return m, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	key, found, err := p.resolveLocked(IdentityFilter{PrimaryID: id, SecondaryID: id})
	if err != nil {
		return m, err
	}
	if !found {
		return m, ErrNoMatch
	}
	raw, ok, err := p.getValue(key)
	if err != nil {
		return m, err
	}
	if !ok {
		return m, ErrNoMatch
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("invalid stored message: %w", err)
	}
	// tombstones are invisible to point lookups, like the mongo backend
	if m.Deleted {
		return models.Message{}, ErrNoMatch
	}
	return m, nil
}

// ListMessages returns the live messages of one conversation in
// insertion order.
func (p *Pebble) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if p.db == nil {
		return nil, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := convoPrefix(conversationID)
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Warn("skipping_invalid_record", zap.ByteString("key", iter.Key()), zap.Error(err))
			continue
		}
		if m.Deleted {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// ListConversations scans all records and folds them into sidebar
// summaries, most recent first.
func (p *Pebble) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	if p.db == nil {
		return nil, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte("convo:")
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	byID := map[string]*models.Conversation{}
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if m.Deleted {
			continue
		}
		c := byID[m.ConversationID]
		if c == nil {
			c = &models.Conversation{ConversationID: m.ConversationID}
			byID[m.ConversationID] = c
		}
		c.Messages++
		if m.DisplayName != "" {
			c.DisplayName = m.DisplayName
		}
		if !m.OccurredAt.Before(c.LastTime) {
			c.LastBody = m.Body
			c.LastStatus = m.Status
			c.LastTime = m.OccurredAt
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	out := make([]models.Conversation, 0, len(byID))
	for _, c := range byID {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastTime.After(out[j].LastTime) })
	return out, nil
}

// SoftDelete tombstones the record matching id.
func (p *Pebble) SoftDelete(ctx context.Context, id string) (bool, error) {
	if p.db == nil {
		return false, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	key, found, err := p.resolveLocked(IdentityFilter{PrimaryID: id, SecondaryID: id})
	if err != nil || !found {
		return false, err
	}
	raw, ok, err := p.getValue(key)
	if err != nil || !ok {
		return false, err
	}
	var m models.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return false, fmt.Errorf("invalid stored message: %w", err)
	}
	if m.Deleted {
		return false, nil
	}
	m.Deleted = true
	m.DeletedTS = time.Now().UTC().UnixNano()
	data, _ := json.Marshal(m)
	if err := p.db.Set(key, data, pebble.Sync); err != nil {
		return false, err
	}
	logger.Info("message_soft_deleted", zap.String("id", id))
	return true, nil
}

// PurgeDeleted removes tombstones deleted before cutoff together with
// their id indexes.
func (p *Pebble) PurgeDeleted(ctx context.Context, cutoff time.Time) (int, error) {
	if p.db == nil {
		return 0, ErrNotReady
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	prefix := []byte("convo:")
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	// nothing commits before the final Apply, so every error path
	// reports zero purged
	wb := p.db.NewBatch()
	purged := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if !m.Deleted || m.DeletedTS >= cutoff.UTC().UnixNano() {
			continue
		}
		key := append([]byte(nil), iter.Key()...)
		if err := wb.Delete(key, nil); err != nil {
			return 0, err
		}
		if m.PrimaryID != "" {
			if err := wb.Delete(primaryKey(m.PrimaryID), nil); err != nil {
				return 0, err
			}
		}
		if m.SecondaryID != "" {
			if err := wb.Delete(append(secondaryPrefix(m.SecondaryID), key...), nil); err != nil {
				return 0, err
			}
		}
		purged++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if purged > 0 {
		if err := p.db.Apply(wb, pebble.Sync); err != nil {
			return 0, err
		}
		purgedTotal.Add(float64(purged))
		logger.Info("retention_purged", zap.Int("count", purged))
	}
	return purged, nil
}
