package cache

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Expirations int64 `json:"expirations"`
	Evictions   int64 `json:"evictions"`
	StoreErrors int64 `json:"store_errors"`
	Entries     int   `json:"entries"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// metrics mirrors every event into Prometheus and into local atomics for
// Stats().
type metrics struct {
	hits, misses, expirations, evictions, storeErrors atomic.Int64

	events *prometheus.CounterVec
}

const (
	eventHit        = "hit"
	eventMiss       = "miss"
	eventExpiration = "expiration"
	eventEviction   = "eviction"
	eventStoreError = "store_error"
)

func newMetrics(reg prometheus.Registerer, backend string) *metrics {
	m := &metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "grade_analytics",
			Subsystem:   "stats_cache",
			Name:        "events_total",
			Help:        "Statistics cache events by type.",
			ConstLabels: prometheus.Labels{"backend": backend},
		}, []string{"event"}),
	}
	if reg != nil {
		if err := reg.Register(m.events); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					m.events = existing
				}
			}
		}
	}
	return m
}

func (m *metrics) record(event string) {
	switch event {
	case eventHit:
		m.hits.Add(1)
	case eventMiss:
		m.misses.Add(1)
	case eventExpiration:
		m.expirations.Add(1)
	case eventEviction:
		m.evictions.Add(1)
	case eventStoreError:
		m.storeErrors.Add(1)
	}
	m.events.WithLabelValues(event).Inc()
}

func (m *metrics) snapshot() Stats {
	return Stats{
		Hits:        m.hits.Load(),
		Misses:      m.misses.Load(),
		Expirations: m.expirations.Load(),
		Evictions:   m.evictions.Load(),
		StoreErrors: m.storeErrors.Load(),
	}
}
