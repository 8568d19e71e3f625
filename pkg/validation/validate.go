package validation

import (
	"errors"
	"fmt"
	"strings"

	"inboxdb/pkg/models"
)

// Rules are the declarative checks applied to API-created messages.
// Webhook ingestion deliberately bypasses them: the pipeline's own
// structural checks are the only gate there.
type Rules struct {
	Required []string
	MaxLen   map[string]int
	Enums    map[string][]string
}

var rules Rules

// SetRules installs the process-wide rule set.
func SetRules(r Rules) { rules = r }

// ValidateMessage checks m against the installed rules plus the fixed
// canonical invariants: a conversation id, at least one external id, and
// a status from the canonical set.
func ValidateMessage(m models.Message) error {
	var errs []string

	if m.ConversationID == "" {
		errs = append(errs, "conversation_id is required")
	}
	if !m.Identified() {
		errs = append(errs, "one of primary_id/secondary_id is required")
	}
	if !m.Status.Valid() {
		errs = append(errs, fmt.Sprintf("invalid status: %q", m.Status))
	}

	root := fieldMap(m)
	for _, p := range rules.Required {
		if v, ok := root[p]; !ok || v == "" {
			errs = append(errs, "required field missing: "+p)
		}
	}
	for p, max := range rules.MaxLen {
		if v, ok := root[p]; ok && len(v) > max {
			errs = append(errs, fmt.Sprintf("max length exceeded at %s: %d > %d", p, len(v), max))
		}
	}
	for p, vals := range rules.Enums {
		if v, ok := root[p]; ok && v != "" && !contains(vals, v) {
			errs = append(errs, "invalid enum at "+p)
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// fieldMap flattens the rule-addressable fields of a message.
func fieldMap(m models.Message) map[string]string {
	return map[string]string{
		"conversation_id": m.ConversationID,
		"display_name":    m.DisplayName,
		"primary_id":      m.PrimaryID,
		"secondary_id":    m.SecondaryID,
		"direction":       string(m.Direction),
		"kind":            m.Kind,
		"body":            m.Body,
		"status":          string(m.Status),
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
