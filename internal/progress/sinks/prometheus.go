package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/linkmapper/internal/progress"
)

// PrometheusSink exports routing and handling counters via Prometheus.
type PrometheusSink struct {
	routed         *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	handlerStarts  *prometheus.CounterVec
	mediaQueued    *prometheus.CounterVec
	handlersActive prometheus.Gauge
	runsDrained    prometheus.Counter

	mu      sync.Mutex
	started map[string]struct{}
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkmapper_links_routed_total",
			Help: "Links routed to a domain handler, partitioned by routing key.",
		}, []string{"domain"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkmapper_links_outcome_total",
			Help: "Links that did not reach a handler, partitioned by outcome.",
		}, []string{"outcome"}),
		handlerStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkmapper_handler_startups_total",
			Help: "Handler startups partitioned by family and result.",
		}, []string{"family", "result"}),
		mediaQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkmapper_media_queued_total",
			Help: "Media items handed to the download subsystem, partitioned by family.",
		}, []string{"family"}),
		handlersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkmapper_handlers_active",
			Help: "Handler families started in the current run.",
		}),
		runsDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkmapper_runs_drained_total",
			Help: "Runs whose dispatcher reached the drained state.",
		}),
		started: make(map[string]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.routed,
		s.outcomes,
		s.handlerStarts,
		s.mediaQueued,
		s.handlersActive,
		s.runsDrained,
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
	switch evt.Stage {
	case progress.StageRouted:
		s.routed.WithLabelValues(evt.Domain).Inc()
	case progress.StageSkipped, progress.StageDropped, progress.StageDirectFile,
		progress.StageDelegated, progress.StageUnsupported:
		s.outcomes.WithLabelValues(outcomeLabel(evt.Stage)).Inc()
	case progress.StageHandlerStarted:
		s.handlerStarts.WithLabelValues(evt.Domain, "ok").Inc()
		if s.markStarted(evt.Domain) {
			s.handlersActive.Inc()
		}
	case progress.StageHandlerFailed:
		s.handlerStarts.WithLabelValues(evt.Domain, "error").Inc()
	case progress.StageMediaQueued:
		s.mediaQueued.WithLabelValues(evt.Domain).Inc()
	case progress.StageDrained:
		s.runsDrained.Inc()
	}
}

func (s *PrometheusSink) markStarted(family string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.started[family]; ok {
		return false
	}
	s.started[family] = struct{}{}
	return true
}

func outcomeLabel(stage progress.Stage) string {
	switch stage {
	case progress.StageSkipped:
		return "skipped"
	case progress.StageDropped:
		return "dropped"
	case progress.StageDirectFile:
		return "direct_file"
	case progress.StageDelegated:
		return "delegated"
	default:
		return "unsupported"
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
