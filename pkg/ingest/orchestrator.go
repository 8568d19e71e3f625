package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"inboxdb/pkg/logger"
	"inboxdb/pkg/store"
)

// Result accumulates the observable outcome of a batch. It is threaded
// explicitly through every processing step instead of living in package
// state, so concurrent batches never share counters.
type Result struct {
	Inserted        int `json:"inserted"`
	StatusUpdated   int `json:"status_updated"`
	SkippedEntries  int `json:"skipped_entries"`
	SkippedPayloads int `json:"skipped_payloads"`
}

// Merge folds other into r.
func (r *Result) Merge(other Result) {
	r.Inserted += other.Inserted
	r.StatusUpdated += other.StatusUpdated
	r.SkippedEntries += other.SkippedEntries
	r.SkippedPayloads += other.SkippedPayloads
}

// Orchestrator drives the ingestion pipeline: extract packets, insert
// canonical messages idempotently, merge status events. One orchestrator
// is safe for concurrent use; all coordination lives in the store's
// atomic per-record operations.
type Orchestrator struct {
	store store.Store

	// Now supplies the current time for absent timestamps; tests pin it.
	Now func() time.Time
}

// NewOrchestrator returns an orchestrator writing to s.
func NewOrchestrator(s store.Store) *Orchestrator {
	return &Orchestrator{store: s, Now: time.Now}
}

// ProcessBatch runs every source through the pipeline. Malformed
// payloads and rejected entries are skipped and counted; only store
// failures abort the batch, returning the counters accumulated so far.
func (o *Orchestrator) ProcessBatch(ctx context.Context, sources []Source) (Result, error) {
	var total Result
	for _, src := range sources {
		res, err := o.ProcessSource(ctx, src)
		total.Merge(res)
		if err != nil {
			return total, err
		}
	}
	logger.Info("batch_complete",
		zap.Int("sources", len(sources)),
		zap.Int("inserted", total.Inserted),
		zap.Int("status_updated", total.StatusUpdated),
	)
	return total, nil
}

// ProcessSource reads one source and processes its payload. A source
// that cannot be read is skipped, like a payload that cannot be parsed.
func (o *Orchestrator) ProcessSource(ctx context.Context, src Source) (Result, error) {
	raw, err := src.Payload()
	if err != nil {
		logger.Warn("skipping_unreadable_source", zap.String("source", src.Label()), zap.Error(err))
		return Result{SkippedPayloads: 1}, nil
	}
	return o.ProcessPayload(ctx, src.Label(), raw)
}

// ProcessPayload runs the pipeline over one payload. The returned error
// is non-nil only for store failures; everything else degrades to skips.
func (o *Orchestrator) ProcessPayload(ctx context.Context, label string, raw []byte) (Result, error) {
	var res Result

	pkts, err := ExtractPackets(raw)
	if err != nil {
		payloadsMalformedTotal.Inc()
		logger.Warn("skipping_invalid_payload", zap.String("source", label), zap.Error(err))
		res.SkippedPayloads++
		return res, nil
	}

	msgEntries, statusEntries := 0, 0
	for _, pkt := range pkts {
		msgEntries += len(pkt.Messages)
		statusEntries += len(pkt.Statuses)

		for _, rawMsg := range pkt.Messages {
			rec, cerr := Canonicalize(pkt, rawMsg, o.Now())
			if cerr != nil {
				logger.Info("skipping_message_entry", zap.String("source", label), zap.Error(cerr))
				res.SkippedEntries++
				continue
			}
			inserted, serr := o.store.InsertIfAbsent(ctx, InsertFilter(rec), rec)
			if serr != nil {
				return res, fmt.Errorf("insert message: %w", serr)
			}
			if inserted {
				res.Inserted++
			}
		}

		for _, st := range pkt.Statuses {
			targetID := firstNonEmpty(st.ID, st.MessageID, st.MetaMsgID)
			if targetID == "" {
				res.SkippedEntries++
				continue
			}
			at, ok := NormalizeTime(st.Timestamp)
			if !ok {
				at = o.Now()
			}
			update := store.StatusUpdate{Status: NormalizeStatus(st.Status), At: at}
			matched, serr := o.store.ApplyStatus(ctx, StatusFilter(targetID), update)
			if serr != nil {
				return res, fmt.Errorf("apply status: %w", serr)
			}
			// no match is a normal no-op: the event may precede its
			// message or target one we never saw
			if matched {
				res.StatusUpdated++
			}
		}
	}

	logger.Info("payload_processed",
		zap.String("source", label),
		zap.Int("message_entries", msgEntries),
		zap.Int("status_entries", statusEntries),
	)
	return res, nil
}
