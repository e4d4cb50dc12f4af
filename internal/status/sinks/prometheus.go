package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cna-research/geoharvest/internal/status"
)

// PrometheusSink exports crawl progress as Prometheus metrics.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	pagesTotal    prometheus.Counter
	currentPage   prometheus.Gauge
	totalPages    prometheus.Gauge
	artifacts     *prometheus.CounterVec
	navFallbacks  *prometheus.CounterVec
	missing       prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geoharvest_runs_started_total",
			Help: "Total crawl runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geoharvest_runs_completed_total",
			Help: "Total crawl runs finished, partitioned by result.",
		}, []string{"result"}),
		pagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geoharvest_pages_processed_total",
			Help: "Listing pages fully processed.",
		}),
		currentPage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geoharvest_current_page",
			Help: "Listing page currently being processed.",
		}),
		totalPages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geoharvest_total_pages",
			Help: "Total listing pages discovered for the run.",
		}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geoharvest_artifacts_total",
			Help: "Artifact transfer attempts partitioned by outcome.",
		}, []string{"outcome"}),
		navFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geoharvest_nav_fallbacks_total",
			Help: "Navigation fallback attempts partitioned by strategy.",
		}, []string{"strategy"}),
		missing: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geoharvest_missing_detail_pages_total",
			Help: "External detail pages that yielded no artifact.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.pagesTotal,
		s.currentPage,
		s.totalPages,
		s.artifacts,
		s.navFallbacks,
		s.missing,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register status collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from one event.
func (s *PrometheusSink) Consume(_ context.Context, evt status.Event) error {
	switch evt.Stage {
	case status.StageRunStart:
		s.runsStarted.Inc()
	case status.StageRunDone:
		s.runsCompleted.WithLabelValues("done").Inc()
	case status.StageRunAborted:
		s.runsCompleted.WithLabelValues("aborted").Inc()
	case status.StagePage:
		s.pagesTotal.Inc()
		s.currentPage.Set(float64(evt.Page))
		s.totalPages.Set(float64(evt.TotalPages))
	case status.StageArtifact:
		s.artifacts.WithLabelValues(evt.Outcome).Inc()
	case status.StageNavFallback:
		s.navFallbacks.WithLabelValues(evt.Strategy).Inc()
	case status.StageMissing:
		s.missing.Inc()
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
