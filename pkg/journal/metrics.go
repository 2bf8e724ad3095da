package journal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lob",
		Subsystem: "journal",
		Name:      "records_appended_total",
		Help:      "Events written to the journal",
	})

	pendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lob",
		Subsystem: "journal",
		Name:      "pending_records",
		Help:      "Journaled events not yet acknowledged by the publisher",
	})
)
