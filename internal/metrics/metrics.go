package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process counters. Each counter is kept both as a
// prometheus counter (scrape surface) and an atomic (the JSON stats
// endpoint), incremented together.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   prometheus.Counter
	redirectsTotal  prometheus.Counter
	errorsTotal     *prometheus.CounterVec
	eventsPublished prometheus.Counter
	eventsDropped   prometheus.Counter
	eventsConsumed  prometheus.Counter
	tasksDropped    prometheus.Counter

	requests  atomic.Int64
	redirects atomic.Int64
	errors    atomic.Int64
	published atomic.Int64
	dropped   atomic.Int64
	consumed  atomic.Int64
}

// Snapshot is the JSON view of the request and event counters
type Snapshot struct {
	Requests        int64 `json:"requests"`
	Redirects       int64 `json:"redirects"`
	Errors          int64 `json:"errors"`
	EventsPublished int64 `json:"events_published"`
	EventsDropped   int64 `json:"events_dropped"`
	EventsConsumed  int64 `json:"events_consumed"`
}

// New creates metrics on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "redirector_requests_total",
			Help: "Total redirect requests received",
		}),
		redirectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "redirector_redirects_total",
			Help: "Total successful redirects served",
		}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "redirector_errors_total",
			Help: "Total failed redirect requests by class",
		}, []string{"class"}),
		eventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "redirector_events_published_total",
			Help: "Total events published to the broker",
		}),
		eventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "redirector_events_dropped_total",
			Help: "Total events dropped due to broker or queue pressure",
		}),
		eventsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "redirector_events_consumed_total",
			Help: "Total events consumed from the broker",
		}),
		tasksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "redirector_tasks_dropped_total",
			Help: "Total background tasks dropped because the queue was full",
		}),
	}
}

// IncRequests counts one inbound redirect request
func (m *Metrics) IncRequests() {
	m.requests.Add(1)
	m.requestsTotal.Inc()
}

// IncRedirects counts one successful redirect
func (m *Metrics) IncRedirects() {
	m.redirects.Add(1)
	m.redirectsTotal.Inc()
}

// IncErrors counts one failed request by class (not_found, gone, blocked,
// unavailable, invalid)
func (m *Metrics) IncErrors(class string) {
	m.errors.Add(1)
	m.errorsTotal.WithLabelValues(class).Inc()
}

// IncEventsPublished counts one published event
func (m *Metrics) IncEventsPublished() {
	m.published.Add(1)
	m.eventsPublished.Inc()
}

// IncEventsDropped counts one dropped event
func (m *Metrics) IncEventsDropped() {
	m.dropped.Add(1)
	m.eventsDropped.Inc()
}

// IncEventsConsumed counts one consumed event
func (m *Metrics) IncEventsConsumed() {
	m.consumed.Add(1)
	m.eventsConsumed.Inc()
}

// IncTasksDropped counts one dropped background task
func (m *Metrics) IncTasksDropped() {
	m.tasksDropped.Inc()
}

// Snapshot returns the current counter values
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Requests:        m.requests.Load(),
		Redirects:       m.redirects.Load(),
		Errors:          m.errors.Load(),
		EventsPublished: m.published.Load(),
		EventsDropped:   m.dropped.Load(),
		EventsConsumed:  m.consumed.Load(),
	}
}

// Handler exposes the prometheus scrape endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
