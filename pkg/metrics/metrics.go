// Package metrics exposes Prometheus collectors for the cache internals.
// Everything registers on the default registry and is served by the debug
// server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsApplied counts reconciler applications that mutated state,
	// labeled by event type.
	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatfeed_events_applied_total",
		Help: "Push/optimistic events applied to the page stores.",
	}, []string{"type"})

	// EventsDropped counts events discarded without effect, labeled by
	// event type and reason (unloaded key, stale reference, duplicate).
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatfeed_events_dropped_total",
		Help: "Events dropped without mutating any store.",
	}, []string{"type", "reason"})

	// PagesAppended counts pages merged into stores.
	PagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatfeed_pages_appended_total",
		Help: "Fetched pages appended to page stores.",
	})

	// StaleFetches counts page results discarded because a reset
	// superseded the fetch.
	StaleFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatfeed_stale_fetches_total",
		Help: "Page fetch results dropped after a store reset.",
	})

	// URLCacheHits / URLCacheMisses track signed-URL cache lookups.
	URLCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatfeed_signed_url_hits_total",
		Help: "Signed-URL lookups answered from the fresh cache.",
	})
	URLCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatfeed_signed_url_misses_total",
		Help: "Signed-URL lookups that required a fetch.",
	})

	// URLFetchesCoalesced counts callers that piggybacked on an in-flight
	// signed-URL fetch instead of issuing their own.
	URLFetchesCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatfeed_signed_url_coalesced_total",
		Help: "Signed-URL callers coalesced into a shared fetch.",
	})

	// IntakeDropped counts event frames rejected by a full intake queue.
	IntakeDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatfeed_intake_dropped_total",
		Help: "Event frames dropped because the intake queue was full.",
	})

	// IntakeDepth gauges the number of frames waiting in the intake queue.
	IntakeDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatfeed_intake_depth",
		Help: "Event frames currently buffered in the intake queue.",
	})

	// StoresLive gauges the number of page stores currently registered.
	StoresLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatfeed_stores_live",
		Help: "Page stores currently held in the registry.",
	})
)

// Reasons used with EventsDropped.
const (
	ReasonUnloadedKey = "unloaded_key"
	ReasonStaleRef    = "stale_reference"
	ReasonDuplicate   = "duplicate"
)
