package models

import (
	"encoding/json"
	"time"
)

// Direction says which way a message travelled relative to the operator:
// inbound means the chat partner sent it, outbound means we did.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Status is the canonical delivery state of a message. Only these four
// values are ever persisted; provider strings are normalized first.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusUnknown   Status = "unknown"
)

// Known reports whether s is one of the three trackable delivery states,
// i.e. the ones that get a slot in StatusHistory.
func (s Status) Known() bool {
	return s == StatusSent || s == StatusDelivered || s == StatusRead
}

// Valid reports whether s is a member of the canonical set at all.
func (s Status) Valid() bool {
	return s.Known() || s == StatusUnknown
}

// StatusHistory records when each trackable status was last observed.
type StatusHistory struct {
	Sent      time.Time `json:"sent,omitempty" bson:"sent,omitempty"`
	Delivered time.Time `json:"delivered,omitempty" bson:"delivered,omitempty"`
	Read      time.Time `json:"read,omitempty" bson:"read,omitempty"`
}

// Set records at as the observation time for s. Unknown is not tracked.
func (h *StatusHistory) Set(s Status, at time.Time) {
	switch s {
	case StatusSent:
		h.Sent = at
	case StatusDelivered:
		h.Delivered = at
	case StatusRead:
		h.Read = at
	}
}

// Message is the canonical, deduplicated record of one chat message.
// ConversationID identifies the chat partner (the provider wa-id);
// PrimaryID is the provider-assigned message id and is unique when
// present; SecondaryID is the alternate correlation id some envelope
// shapes carry (e.g. a reply-context id). At least one of the two ids
// and a non-empty ConversationID are required for a record to exist.
type Message struct {
	ConversationID string `json:"conversation_id" bson:"conversation_id"`
	DisplayName    string `json:"display_name,omitempty" bson:"display_name,omitempty"`

	PrimaryID   string `json:"primary_id,omitempty" bson:"primary_id,omitempty"`
	SecondaryID string `json:"secondary_id,omitempty" bson:"secondary_id,omitempty"`

	Direction Direction `json:"direction" bson:"direction"`
	Kind      string    `json:"kind" bson:"kind"`
	Body      string    `json:"body" bson:"body"`

	// Raw keeps the per-message entry exactly as it arrived, for audit.
	Raw json.RawMessage `json:"raw,omitempty" bson:"raw,omitempty"`

	Status        Status        `json:"status" bson:"status"`
	StatusHistory StatusHistory `json:"status_history" bson:"status_history"`

	OccurredAt time.Time `json:"occurred_at" bson:"occurred_at"`

	// Soft-delete tombstone; purged later by retention.
	Deleted   bool  `json:"deleted,omitempty" bson:"deleted,omitempty"`
	DeletedTS int64 `json:"deleted_ts,omitempty" bson:"deleted_ts,omitempty"`
}

// Identified reports whether the record carries at least one external id.
func (m *Message) Identified() bool {
	return m.PrimaryID != "" || m.SecondaryID != ""
}
