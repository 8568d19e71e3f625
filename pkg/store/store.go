package store

import (
	"context"
	"errors"
	"time"

	"inboxdb/pkg/models"
)

// ErrNotReady is returned when an operation is attempted before the
// backend has been opened.
var ErrNotReady = errors.New("store not opened")

// IdentityFilter locates one canonical message record. PrimaryID and
// SecondaryID OR-match against the stored ids; when both are empty the
// content fields form a weak fallback match (conversation + body +
// occurred-at). The weak path cannot guarantee true dedup, so backends
// count every use of it.
type IdentityFilter struct {
	PrimaryID   string
	SecondaryID string

	ConversationID string
	Body           string
	OccurredAt     time.Time
}

// Weak reports whether the filter has no ids and will fall back to the
// degraded content match.
func (f IdentityFilter) Weak() bool {
	return f.PrimaryID == "" && f.SecondaryID == ""
}

// Empty reports whether the filter matches nothing at all.
func (f IdentityFilter) Empty() bool {
	return f.Weak() && f.ConversationID == "" && f.Body == "" && f.OccurredAt.IsZero()
}

// StatusUpdate is the field-set payload of a status merge: the record's
// status becomes Status unconditionally, and when Status is one of the
// trackable states the matching StatusHistory slot is set to At.
type StatusUpdate struct {
	Status models.Status
	At     time.Time
}

// Store is the document store the ingestion engine and the API run
// against. Each call is atomic for the single record it touches; no
// multi-record transactions are offered or needed.
type Store interface {
	// InsertIfAbsent inserts rec only when no record matches f.
	// It reports whether an insert happened.
	InsertIfAbsent(ctx context.Context, f IdentityFilter, rec models.Message) (bool, error)

	// ApplyStatus applies u to the first record matching f and reports
	// whether a record matched. No match is not an error.
	ApplyStatus(ctx context.Context, f IdentityFilter, u StatusUpdate) (bool, error)

	// GetMessage returns the record whose primary or secondary id equals
	// id, or ErrNoMatch.
	GetMessage(ctx context.Context, id string) (models.Message, error)

	// ListMessages returns the live (non-deleted) messages of one
	// conversation, oldest first. limit <= 0 means no limit.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)

	// ListConversations returns sidebar summaries, most recent first.
	ListConversations(ctx context.Context) ([]models.Conversation, error)

	// SoftDelete tombstones the record matching id; purge happens later.
	SoftDelete(ctx context.Context, id string) (bool, error)

	// PurgeDeleted removes tombstoned records deleted before cutoff and
	// returns how many were purged.
	PurgeDeleted(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// ErrNoMatch is returned by point lookups when no record matches.
var ErrNoMatch = errors.New("no matching record")
