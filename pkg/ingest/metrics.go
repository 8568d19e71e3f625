package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var payloadsMalformedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "inboxdb_payloads_malformed_total",
	Help: "Payloads skipped because they were not valid JSON.",
})
