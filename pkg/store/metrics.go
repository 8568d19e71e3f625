package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters shared by both backends. The weak-filter counter matters most
// operationally: every hit is a dedup decision made without a provider id.
var (
	insertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inboxdb_messages_inserted_total",
		Help: "Canonical message records created.",
	})
	duplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inboxdb_messages_duplicate_total",
		Help: "Inserts suppressed because a record already matched.",
	})
	statusAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inboxdb_status_applied_total",
		Help: "Status events merged into an existing record.",
	})
	statusDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inboxdb_status_dropped_total",
		Help: "Status events that matched no record and were dropped.",
	})
	weakFilterTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inboxdb_weak_filter_total",
		Help: "Lookups that fell back to the content-based dedup filter.",
	})
	purgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inboxdb_messages_purged_total",
		Help: "Tombstoned records removed by retention.",
	})
)
