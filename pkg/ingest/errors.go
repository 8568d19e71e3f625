package ingest

import "errors"

var errInvalidJSON = errors.New("payload is not valid JSON")

// Rejection reasons for message entries. A rejected entry is skipped and
// logged; it never aborts the payload or the batch.
var (
	// ErrNoConversation means neither the packet's contact nor the
	// entry's from field yielded a chat-partner id.
	ErrNoConversation = errors.New("message entry has no conversation id")

	// ErrNoIdentifiers means the entry carried neither a message id nor
	// a context-reference id, so it can never be deduplicated or
	// targeted by a status event.
	ErrNoIdentifiers = errors.New("message entry has no usable identifier")
)

// ParseError marks a payload that could not be parsed as JSON at all.
// The orchestrator skips such payloads and continues the batch.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return "parse payload: " + e.Err.Error()
	}
	return "parse payload " + e.Source + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }
