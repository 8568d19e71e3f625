package ingest

import (
	"strings"

	"inboxdb/pkg/models"
)

// NormalizeStatus maps an arbitrary provider status string onto the
// canonical set. Substring matching is deliberate: it tolerates vendor
// decorations around the core word ("Delivered_OK", "message-read").
// Priority matters: "read" is checked first so strings carrying several
// keywords resolve to the furthest state mentioned.
func NormalizeStatus(s string) models.Status {
	t := strings.ToLower(s)
	switch {
	case strings.Contains(t, "read"):
		return models.StatusRead
	case strings.Contains(t, "deliver"):
		return models.StatusDelivered
	case strings.Contains(t, "sent"):
		return models.StatusSent
	default:
		return models.StatusUnknown
	}
}
