package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the billing collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	webhooks        *prometheus.CounterVec
	planChanges     *prometheus.CounterVec
	sweepRuns       *prometheus.CounterVec
	sweepDeactivate prometheus.Counter
	sweepDuration   prometheus.Histogram
	notifications   *prometheus.CounterVec
	queueJobs       *prometheus.CounterVec
}

// New registers the billing collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfox_webhook_events_total",
			Help: "Payment webhook deliveries by outcome",
		}, []string{"ack"}),
		planChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfox_plan_changes_total",
			Help: "Plan assignments by plan and kind",
		}, []string{"plan", "kind"}),
		sweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfox_expiration_sweeps_total",
			Help: "Expiration sweeps by result",
		}, []string{"result"}),
		sweepDeactivate: f.NewCounter(prometheus.CounterOpts{
			Name: "marketfox_plans_expired_total",
			Help: "Plans deactivated by expiration sweeps",
		}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketfox_expiration_sweep_duration_seconds",
			Help:    "Duration of expiration sweeps",
			Buckets: prometheus.DefBuckets,
		}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfox_notifications_total",
			Help: "Owner notifications by result",
		}, []string{"result"}),
		queueJobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfox_queue_jobs_total",
			Help: "Background jobs by type and result",
		}, []string{"type", "result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) WebhookHandled(ack string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(ack).Inc()
}

func (m *Metrics) PlanChanged(plan string, trial bool) {
	if m == nil {
		return
	}
	kind := "paid"
	if trial {
		kind = "trial"
	}
	m.planChanges.WithLabelValues(plan, kind).Inc()
}

func (m *Metrics) SweepFinished(deactivated, failures int, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case failures > 0:
		result = "partial"
	}
	m.sweepRuns.WithLabelValues(result).Inc()
	m.sweepDeactivate.Add(float64(deactivated))
	m.sweepDuration.Observe(took.Seconds())
}

func (m *Metrics) NotificationSent(err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) JobProcessed(jobType, result string) {
	if m == nil {
		return
	}
	m.queueJobs.WithLabelValues(jobType, result).Inc()
}
