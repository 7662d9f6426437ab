package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	retrato = "retrato"

	// Pipeline metrics
	generationRetriesTotal   = "generation_retries_total"
	generationExhaustedTotal = "generation_exhausted_total"
	pipelineTimeoutsTotal    = "pipeline_timeouts_total"
	jobsCompletedTotal       = "jobs_completed_total"
	jobsFailedTotal          = "jobs_failed_total"

	// Limiter metrics
	rateLimitedTotal = "rate_limited_total"

	// Labels
	classificationLabel = "classification"
	presetLabel         = "preset"
	pathLabel           = "path"
)

/**
* Metrics definition
**/
var generationRetriesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: retrato,
		Name:      generationRetriesTotal,
		Help:      "number of retried generation attempts",
	},
	[]string{classificationLabel},
)

var generationExhaustedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: retrato,
		Name:      generationExhaustedTotal,
		Help:      "number of jobs whose generation retry budget ran out",
	},
	[]string{classificationLabel},
)

var pipelineTimeoutsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: retrato,
		Name:      pipelineTimeoutsTotal,
		Help:      "number of pipeline runs cut off by the deadline guard",
	},
)

var jobsCompletedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: retrato,
		Name:      jobsCompletedTotal,
		Help:      "number of successfully completed jobs",
	},
	[]string{presetLabel},
)

var jobsFailedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: retrato,
		Name:      jobsFailedTotal,
		Help:      "number of terminally failed jobs",
	},
	[]string{classificationLabel},
)

var rateLimitedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: retrato,
		Name:      rateLimitedTotal,
		Help:      "number of requests denied by the rate limiter",
	},
	[]string{pathLabel},
)

func IncreaseGenerationRetriesMetric(classification string) {
	generationRetriesTotalMetric.With(prometheus.Labels{classificationLabel: classification}).Inc()
}

func IncreaseGenerationExhaustedMetric(classification string) {
	generationExhaustedTotalMetric.With(prometheus.Labels{classificationLabel: classification}).Inc()
}

func IncreasePipelineTimeoutsMetric() {
	pipelineTimeoutsTotalMetric.Inc()
}

func IncreaseJobsCompletedMetric(preset string) {
	jobsCompletedTotalMetric.With(prometheus.Labels{presetLabel: preset}).Inc()
}

func IncreaseJobsFailedMetric(classification string) {
	jobsFailedTotalMetric.With(prometheus.Labels{classificationLabel: classification}).Inc()
}

func IncreaseRateLimitedMetric(path string) {
	rateLimitedTotalMetric.With(prometheus.Labels{pathLabel: path}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(generationRetriesTotalMetric)
	prometheus.MustRegister(generationExhaustedTotalMetric)
	prometheus.MustRegister(pipelineTimeoutsTotalMetric)
	prometheus.MustRegister(jobsCompletedTotalMetric)
	prometheus.MustRegister(jobsFailedTotalMetric)
	prometheus.MustRegister(rateLimitedTotalMetric)
	prometheus.MustRegister(totalUniqueVisitPerWeekMetric)
}
