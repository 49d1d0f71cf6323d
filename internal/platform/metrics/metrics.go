package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests and multiple servers in one
// process do not collide on the default one.
type Collector struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration prometheus.Histogram
	rateLimited     prometheus.Counter
	roleChanges     prometheus.Counter
	commitFailures  prometheus.Counter
	permissionEdits *prometheus.CounterVec
	backfilled      prometheus.Counter
	jobRuns         *prometheus.CounterVec
}

func New() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by status code.",
		}, []string{"code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
		roleChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "role_changes_committed_total",
			Help: "Role reassignments committed.",
		}),
		commitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "role_change_commit_failures_total",
			Help: "Reassignment batches that failed and were rolled back.",
		}),
		permissionEdits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "role_permission_edits_total",
			Help: "Permission set edits by operation.",
		}, []string{"op"}),
		backfilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assignments_backfilled_total",
			Help: "Assignment rows inserted for employees that had none.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "job_runs_total",
			Help: "Background job runs by job and status.",
		}, []string{"job", "status"}),
	}
	registry.MustRegister(c.requests, c.requestDuration, c.rateLimited, c.roleChanges, c.commitFailures, c.permissionEdits, c.backfilled, c.jobRuns)
	return c
}

func (c *Collector) Record(status int, duration time.Duration) {
	c.requests.WithLabelValues(strconv.Itoa(status)).Inc()
	c.requestDuration.Observe(duration.Seconds())
	if status == http.StatusTooManyRequests {
		c.rateLimited.Inc()
	}
}

func (c *Collector) RoleChangesCommitted(n int) {
	c.roleChanges.Add(float64(n))
}

func (c *Collector) CommitFailed() {
	c.commitFailures.Inc()
}

func (c *Collector) PermissionEdited(op string) {
	c.permissionEdits.WithLabelValues(op).Inc()
}

func (c *Collector) AssignmentsBackfilled(n int) {
	c.backfilled.Add(float64(n))
}

func (c *Collector) JobFinished(job, status string) {
	c.jobRuns.WithLabelValues(job, status).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
