package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const visitCountPerWeek = "visits_count_per_week"

var totalUniqueVisitPerWeekMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: retrato,
		Name:      visitCountPerWeek,
		Help:      "number of distinct clients seen since the last weekly reset",
	},
)

type uniqueVisits struct {
	counter  prometheus.Gauge
	visitors map[string]struct{}
	mu       sync.Mutex
}

// UniqueVisitsPerWeek tracks distinct client addresses hitting the API.
// The metrics server resets it on a weekly ticker, which also bounds the
// visitor set.
var UniqueVisitsPerWeek = &uniqueVisits{
	counter:  totalUniqueVisitPerWeekMetric,
	visitors: make(map[string]struct{}),
}

func (v *uniqueVisits) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.visitors = make(map[string]struct{})
	v.counter.Set(0)
}

func (v *uniqueVisits) IncreaseTotalUniqueVisit(visitor string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, seen := v.visitors[visitor]; seen {
		return
	}

	v.visitors[visitor] = struct{}{}
	v.counter.Inc()
}
