package ingest

import (
	"inboxdb/pkg/models"
	"inboxdb/pkg/store"
)

// InsertFilter builds the dedup filter for inserting rec: an OR over
// whichever provider ids are present. The content fields are carried
// along for the store's weak fallback, which can only trigger when both
// ids are empty, a state the canonicalizer normally rejects upstream.
func InsertFilter(rec models.Message) store.IdentityFilter {
	return store.IdentityFilter{
		PrimaryID:      rec.PrimaryID,
		SecondaryID:    rec.SecondaryID,
		ConversationID: rec.ConversationID,
		Body:           rec.Body,
		OccurredAt:     rec.OccurredAt,
	}
}

// StatusFilter builds the merge filter for a status event: the target id
// may be stored as either the primary or the secondary id.
func StatusFilter(targetID string) store.IdentityFilter {
	return store.IdentityFilter{
		PrimaryID:   targetID,
		SecondaryID: targetID,
	}
}
