// Package metrics declares the Prometheus collectors shared by the store,
// export and dispatch packages. They register on the default registry and are
// served by the API under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "invoicecraft"

// ─── Export ────────────────────────────────────────────────────────────────

var ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "export",
	Name:      "documents_total",
	Help:      "Document exports by format and outcome.",
}, []string{"format", "outcome"})

var ExportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "export",
	Name:      "duration_seconds",
	Help:      "Time spent capturing and encoding a document.",
	Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
}, []string{"format"})

var ExportPages = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "export",
	Name:      "pages",
	Help:      "Pages emitted per PDF export.",
	Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 20},
})

var ExportQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "export",
	Name:      "queue_depth",
	Help:      "Export jobs waiting for the worker slot.",
})

// ─── Store ─────────────────────────────────────────────────────────────────

var StoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "store",
	Name:      "operations_total",
	Help:      "Persistence operations by name and outcome.",
}, []string{"op", "outcome"})

var StoreCorruptLoads = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "store",
	Name:      "corrupt_loads_total",
	Help:      "Loads that found an unparseable collection payload.",
})

var StoreInvoices = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "store",
	Name:      "invoices",
	Help:      "Invoices in the collection after the last read or write.",
})

// ─── Dispatch ──────────────────────────────────────────────────────────────

var DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "dispatch",
	Name:      "sends_total",
	Help:      "Dispatch attempts by mode (remote, fallback, compose) and outcome.",
}, []string{"mode", "outcome"})

// Outcome returns the label value for err.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
