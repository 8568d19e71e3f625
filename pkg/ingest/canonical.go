package ingest

import (
	"encoding/json"
	"time"

	"inboxdb/pkg/models"
)

// messageEntry is the parsed view of one raw message entry. Optional
// text fields are pointers so "present but empty" and "absent" stay
// distinguishable, which the body-location fallback depends on.
type messageEntry struct {
	ID        string          `json:"id"`
	MessageID string          `json:"message_id"`
	MetaMsgID string          `json:"meta_msg_id"`
	From      string          `json:"from"`
	Timestamp json.RawMessage `json:"timestamp"`
	Type      string          `json:"type"`
	Caption   *string         `json:"caption"`
	Text      *struct {
		Body *string `json:"body"`
	} `json:"text"`
	Message *struct {
		Text *struct {
			Body *string `json:"body"`
		} `json:"text"`
	} `json:"message"`
	Context *struct {
		ID string `json:"id"`
	} `json:"context"`
}

// bodyText returns the first of the three known body locations that
// yields a string: text.body, message.text.body, caption.
func (e *messageEntry) bodyText() (string, bool) {
	if e.Text != nil && e.Text.Body != nil {
		return *e.Text.Body, true
	}
	if e.Message != nil && e.Message.Text != nil && e.Message.Text.Body != nil {
		return *e.Message.Text.Body, true
	}
	if e.Caption != nil {
		return *e.Caption, true
	}
	return "", false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Canonicalize builds the canonical record for one raw message entry of
// a packet. now supplies the fallback occurrence time. The two rejection
// errors (ErrNoConversation, ErrNoIdentifiers) mean the entry must be
// skipped; anything else on this path is malformed-entry JSON, treated
// the same way by callers.
func Canonicalize(pkt Packet, raw json.RawMessage, now time.Time) (models.Message, error) {
	var e messageEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return models.Message{}, err
	}

	var contactID, contactName string
	if len(pkt.Contacts) > 0 {
		contactID = pkt.Contacts[0].WaID
		contactName = firstNonEmpty(pkt.Contacts[0].Profile.Name, pkt.Contacts[0].Name)
	}

	conversationID := firstNonEmpty(contactID, e.From)
	if conversationID == "" {
		return models.Message{}, ErrNoConversation
	}

	primaryID := firstNonEmpty(e.ID, e.MessageID)
	secondaryID := e.MetaMsgID
	if secondaryID == "" && e.Context != nil {
		secondaryID = e.Context.ID
	}
	if primaryID == "" && secondaryID == "" {
		return models.Message{}, ErrNoIdentifiers
	}

	body, hasBody := e.bodyText()

	occurredAt, ok := NormalizeTime(e.Timestamp)
	if !ok {
		occurredAt = now
	}

	kind := e.Type
	if kind == "" {
		if hasBody {
			kind = "text"
		} else {
			kind = "unknown"
		}
	}

	// The sole direction rule: a message sent by the contact themselves
	// is inbound, everything else is outbound.
	direction := models.DirectionOutbound
	if contactID != "" && e.From != "" && e.From == contactID {
		direction = models.DirectionInbound
	}

	m := models.Message{
		ConversationID: conversationID,
		DisplayName:    contactName,
		PrimaryID:      primaryID,
		SecondaryID:    secondaryID,
		Direction:      direction,
		Kind:           kind,
		Body:           body,
		Raw:            append(json.RawMessage(nil), raw...),
		Status:         models.StatusSent,
		OccurredAt:     occurredAt,
	}
	m.StatusHistory.Set(models.StatusSent, occurredAt)
	return m, nil
}
