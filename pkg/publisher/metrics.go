package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lob",
		Subsystem: "publisher",
		Name:      "messages_total",
		Help:      "Events written to Kafka and acknowledged in the journal",
	})

	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lob",
		Subsystem: "publisher",
		Name:      "write_errors_total",
		Help:      "Failed Kafka batch writes",
	})
)
