// Package prommetrics implements symstream.MetricsSink on top of the
// Prometheus client. Collectors are created on first use; the label set of a
// metric is fixed by the tag keys of its first observation.
package prommetrics

import (
	"errors"
	"sort"
	"sync"

	"github.com/ggoodman/symstream"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink is a symstream.MetricsSink backed by Prometheus collectors.
type Sink struct {
	namespace string
	reg       prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// New returns a Sink registering its collectors with reg under namespace.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) *Sink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Sink{
		namespace:  namespace,
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func (s *Sink) IncCounter(name string, tags map[string]string) {
	s.mu.Lock()
	cv, ok := s.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      name + "_total",
			Help:      "symstream " + name,
		}, labelNames(tags))
		cv = register(s.reg, cv)
		s.counters[name] = cv
	}
	s.mu.Unlock()

	if c, err := cv.GetMetricWith(tags); err == nil {
		c.Inc()
	}
}

func (s *Sink) ObserveHistogram(name string, value float64, tags map[string]string) {
	s.mu.Lock()
	hv, ok := s.histograms[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      name,
			Help:      "symstream " + name,
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, labelNames(tags))
		hv = register(s.reg, hv)
		s.histograms[name] = hv
	}
	s.mu.Unlock()

	if o, err := hv.GetMetricWith(tags); err == nil {
		o.Observe(value)
	}
}

// register adds c to reg, reusing an identical collector that is already
// registered (for example by a previous Sink on the same registry).
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

var _ symstream.MetricsSink = (*Sink)(nil)
