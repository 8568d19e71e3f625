package ingest

import "encoding/json"

// Contact is the chat-partner block a value packet may carry.
type Contact struct {
	WaID    string `json:"wa_id"`
	Name    string `json:"name"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// StatusEntry is one delivery-status event. Providers disagree on which
// field carries the target message id, so all three are kept.
type StatusEntry struct {
	ID        string          `json:"id"`
	MessageID string          `json:"message_id"`
	MetaMsgID string          `json:"meta_msg_id"`
	Status    string          `json:"status"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Packet is the innermost "value" unit of a webhook envelope: the
// contacts, messages and statuses for one conversation update. Message
// entries stay raw here; the canonicalizer parses them per entry so the
// original bytes can be retained verbatim.
type Packet struct {
	Contacts []Contact         `json:"contacts"`
	Messages []json.RawMessage `json:"messages"`
	Statuses []StatusEntry     `json:"statuses"`
}

// envelopeEntry models the entry[].changes[].value nesting both known
// webhook conventions share.
type envelopeEntry struct {
	Changes []struct {
		Value *Packet `json:"value"`
	} `json:"changes"`
}

// extractFunc is one envelope-shape strategy. ok reports whether the
// shape was recognized; the packet list may still be empty when entries
// carry no values.
type extractFunc func(raw []byte) ([]Packet, bool)

// strategies are tried top-to-bottom; the first recognized shape wins.
// The bare fallback always succeeds, so extraction never fails on valid
// JSON.
var strategies = []extractFunc{
	extractWrappedEntries,
	extractRootEntries,
	extractBare,
}

// ExtractPackets pulls the value packets out of one webhook payload of
// unknown shape. The only error is malformed JSON.
func ExtractPackets(raw []byte) ([]Packet, error) {
	if !json.Valid(raw) {
		return nil, &ParseError{Err: errInvalidJSON}
	}
	for _, s := range strategies {
		if pkts, ok := s(raw); ok {
			return pkts, nil
		}
	}
	// unreachable: extractBare accepts anything valid
	return nil, nil
}

func collectValues(entries []envelopeEntry) []Packet {
	out := []Packet{}
	for _, e := range entries {
		for _, ch := range e.Changes {
			if ch.Value != nil {
				out = append(out, *ch.Value)
			}
		}
	}
	return out
}

// extractWrappedEntries handles payloads whose entries sit under a
// metaData wrapper.
func extractWrappedEntries(raw []byte) ([]Packet, bool) {
	var env struct {
		MetaData struct {
			Entry []envelopeEntry `json:"entry"`
		} `json:"metaData"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || len(env.MetaData.Entry) == 0 {
		return nil, false
	}
	return collectValues(env.MetaData.Entry), true
}

// extractRootEntries handles the standard convention with entries at the
// payload root.
func extractRootEntries(raw []byte) ([]Packet, bool) {
	var env struct {
		Entry []envelopeEntry `json:"entry"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Entry) == 0 {
		return nil, false
	}
	return collectValues(env.Entry), true
}

// extractBare treats the whole payload as a single value-like packet.
func extractBare(raw []byte) ([]Packet, bool) {
	var p Packet
	if err := json.Unmarshal(raw, &p); err != nil {
		// valid JSON but not an object (e.g. an array); nothing to do,
		// but the payload itself is not an error
		return []Packet{{}}, true
	}
	return []Packet{p}, true
}
