package metrics

import "github.com/prometheus/client_golang/prometheus"

type Observer interface {
	Observe(val float64, labels ...string)

	// for now we will tightly couple to the prometheus collector type
	// the go otel metrics sdk also has a prometheus adapter that implements this interface.
	prometheus.Collector
}

type Metrics struct {
	// EventsCount counts gateway events received, labeled by type.
	EventsCount Observer
	// CommandCount counts command invocations, labeled by name.
	CommandCount Observer
	// ActionsCount counts moderation actions performed by commands,
	// labeled by action kind.
	ActionsCount Observer
	// CasesCount counts cases recorded in the ledger.
	CasesCount Observer
	// DedupSuppressed counts ban/unban events skipped because the
	// guard had a mark.
	DedupSuppressed Observer
	// FilteredCount counts messages deleted by the word filter.
	FilteredCount Observer
	// AmendLatency observes how long reason amendments take in seconds.
	AmendLatency Observer
}

func (m Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.EventsCount,
		m.CommandCount,
		m.ActionsCount,
		m.CasesCount,
		m.DedupSuppressed,
		m.FilteredCount,
		m.AmendLatency,
	}
}
