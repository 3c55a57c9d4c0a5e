package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "va"

// Metrics is nil-safe: every method on a nil *Metrics is a no-op, so
// components under test can run without a registry.
type Metrics struct {
	webhooksReceived       *prometheus.CounterVec
	notificationsProcessed *prometheus.CounterVec
	jobDuration            *prometheus.HistogramVec
	jobsDeadLettered       prometheus.Counter
	queueJobs              *prometheus.GaugeVec
	vasIssued              *prometheus.CounterVec
	vasExpired             prometheus.Counter
	downstreamFailures     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhooksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_received_total",
			Help:      "Inbound gateway notifications by ingestion result.",
		}, []string{"result"}),
		notificationsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_processed_total",
			Help:      "Processed payment notifications by outcome.",
		}, []string{"outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_job_duration_seconds",
			Help:      "Time spent executing one notification job.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		jobsDeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_dead_lettered_total",
			Help:      "Notification jobs that exhausted retries. Any increase needs an operator.",
		}),
		queueJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_jobs",
			Help:      "Notification jobs by queue status.",
		}, []string{"status"}),
		vasIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "virtual_accounts_issued_total",
			Help:      "Virtual accounts issued by bank.",
		}, []string{"bank"}),
		vasExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "virtual_accounts_expired_total",
			Help:      "Virtual accounts moved to expired by the sweeper.",
		}),
		downstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downstream_publish_failures_total",
			Help:      "Best-effort payment confirmation publishes that failed.",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		m.webhooksReceived,
		m.notificationsProcessed,
		m.jobDuration,
		m.jobsDeadLettered,
		m.queueJobs,
		m.vasIssued,
		m.vasExpired,
		m.downstreamFailures,
	)
	return m
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) WebhookReceived(result string) {
	if m == nil {
		return
	}
	m.webhooksReceived.WithLabelValues(result).Inc()
}

func (m *Metrics) NotificationProcessed(outcome string) {
	if m == nil {
		return
	}
	m.notificationsProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) JobCompleted(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) JobDeadLettered() {
	if m == nil {
		return
	}
	m.jobsDeadLettered.Inc()
}

func (m *Metrics) SetQueueJobs(status string, n int) {
	if m == nil {
		return
	}
	m.queueJobs.WithLabelValues(status).Set(float64(n))
}

func (m *Metrics) VirtualAccountIssued(bank string) {
	if m == nil {
		return
	}
	m.vasIssued.WithLabelValues(bank).Inc()
}

func (m *Metrics) VirtualAccountsExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.vasExpired.Add(float64(n))
}

func (m *Metrics) DownstreamFailed(sink string) {
	if m == nil {
		return
	}
	m.downstreamFailures.WithLabelValues(sink).Inc()
}
