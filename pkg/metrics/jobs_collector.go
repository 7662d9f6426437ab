package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/retrato-ai/retrato/internal/store"
)

// jobStatsCollector reads the job population from the store at scrape time,
// so the gauges never drift from the table.
type jobStatsCollector struct {
	store        store.Store
	totalJobs    *prometheus.Desc
	jobsByStatus *prometheus.Desc
}

func newJobStatsCollector(s store.Store) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_jobs_%s", retrato, name)
	}

	return &jobStatsCollector{
		store: s,
		totalJobs: prometheus.NewDesc(
			fqName("total"),
			"Total number of jobs.",
			nil,
			prometheus.Labels{},
		),
		jobsByStatus: prometheus.NewDesc(
			fqName("by_status_total"),
			"Number of jobs in each lifecycle status.",
			[]string{"status"},
			prometheus.Labels{},
		),
	}
}

func (c *jobStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalJobs
	ch <- c.jobsByStatus
}

// Collect implements Collector.
func (c *jobStatsCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.store.Statistics(context.Background())
	if err != nil {
		zap.S().Named("jobs_collector").Errorf("failed to collect job statistics: %s", err)
		return
	}

	var total int64
	for status, count := range counts {
		total += count
		ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(count), string(status))
	}
	ch <- prometheus.MustNewConstMetric(c.totalJobs, prometheus.GaugeValue, float64(total))
}
