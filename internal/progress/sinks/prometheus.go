package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/review-harvester/internal/progress"
)

// PrometheusSink exports harvest progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted      prometheus.Counter
	targetsInFlight  prometheus.Gauge
	targetsCompleted *prometheus.CounterVec
	targetDuration   *prometheus.HistogramVec
	recordsTotal     prometheus.Counter

	pageFetches  *prometheus.CounterVec
	pageBytes    prometheus.Counter
	pageDuration *prometheus.HistogramVec

	tracker *targetTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_runs_started_total",
			Help: "Harvest runs started.",
		}),
		targetsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_targets_in_flight",
			Help: "Targets currently being walked.",
		}),
		targetsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_targets_completed_total",
			Help: "Finished targets partitioned by result.",
		}, []string{"result"}),
		targetDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_target_duration_seconds",
			Help:    "Wall time per finished target.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		recordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_records_total",
			Help: "Reviews extracted from fetched pages.",
		}),
		pageFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_page_fetches_total",
			Help: "Page fetches partitioned by status class.",
		}, []string{"status_class"}),
		pageBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_page_bytes_total",
			Help: "Bytes downloaded across all pages.",
		}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_page_fetch_duration_seconds",
			Help:    "Page fetch duration partitioned by status class.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"status_class"}),
		tracker: newTargetTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.targetsInFlight,
		s.targetsCompleted,
		s.targetDuration,
		s.recordsTotal,
		s.pageFetches,
		s.pageBytes,
		s.pageDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch {
	case evt.Stage == progress.StageRunStart:
		s.runsStarted.Inc()
	case evt.Stage == progress.StageTargetStart:
		if s.tracker.start(evt) {
			s.targetsInFlight.Inc()
		}
	case evt.Stage == progress.StagePageDone:
		s.handlePage(evt)
	case evt.Stage.IsTargetEnd():
		result := resultLabel(evt.Stage)
		s.targetsCompleted.WithLabelValues(result).Inc()
		if evt.Dur > 0 {
			s.targetDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt) {
			s.targetsInFlight.Dec()
		}
	}
}

func (s *PrometheusSink) handlePage(evt progress.Event) {
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.pageFetches.WithLabelValues(statusClass).Inc()
	if evt.Bytes > 0 {
		s.pageBytes.Add(float64(evt.Bytes))
	}
	if evt.Records > 0 {
		s.recordsTotal.Add(float64(evt.Records))
	}
	if evt.Dur > 0 {
		s.pageDuration.WithLabelValues(statusClass).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func resultLabel(stage progress.Stage) string {
	switch stage {
	case progress.StageTargetDone:
		return "done"
	case progress.StageTargetEmpty:
		return "empty"
	default:
		return "failed"
	}
}

type targetKey struct {
	run   [16]byte
	city  string
	hotel string
}

type targetTracker struct {
	mu      sync.Mutex
	running map[targetKey]struct{}
}

func newTargetTracker() *targetTracker {
	return &targetTracker{running: make(map[targetKey]struct{})}
}

func (t *targetTracker) start(evt progress.Event) bool {
	key := targetKey{run: evt.RunID, city: evt.City, hotel: evt.Hotel}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[key]; ok {
		return false
	}
	t.running[key] = struct{}{}
	return true
}

func (t *targetTracker) complete(evt progress.Event) bool {
	key := targetKey{run: evt.RunID, city: evt.City, hotel: evt.Hotel}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[key]; !ok {
		return false
	}
	delete(t.running, key)
	return true
}
