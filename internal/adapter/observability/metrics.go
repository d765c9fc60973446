package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	JobsEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of inference jobs enqueued",
		},
	)
	JobsProcessing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobs_processing",
			Help: "Number of jobs currently in a worker batch",
		},
	)
	JobsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs completed",
		},
	)
	JobsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs failed terminally",
		},
	)
	JobsRetriedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_retried_total",
			Help: "Total number of job re-enqueues after a failed attempt",
		},
	)
	JobsDedupedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_deduped_total",
			Help: "Total number of submissions answered by fingerprint dedup",
		},
	)

	BatchSizeHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_batch_size",
			Help:    "Distribution of collected batch sizes",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8},
		},
	)
	InferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_duration_seconds",
			Help:    "Forward-pass duration per batch in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"engine"},
	)
	WorkerRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_restarts_total",
			Help: "Total number of crashed workers restarted by the supervisor",
		},
	)
	JobsRecoveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_recovered_total",
			Help: "Total number of stuck jobs re-dispatched by recovery",
		},
		[]string{"kind"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(JobsEnqueuedTotal)
	prometheus.MustRegister(JobsProcessing)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(JobsRetriedTotal)
	prometheus.MustRegister(JobsDedupedTotal)
	prometheus.MustRegister(BatchSizeHistogram)
	prometheus.MustRegister(InferenceDuration)
	prometheus.MustRegister(WorkerRestartsTotal)
	prometheus.MustRegister(JobsRecoveredTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

func EnqueueJob() {
	JobsEnqueuedTotal.Inc()
}

func StartProcessingJobs(n int) {
	JobsProcessing.Add(float64(n))
}

func CompleteJob() {
	JobsProcessing.Dec()
	JobsCompletedTotal.Inc()
}

func FailJob() {
	JobsFailedTotal.Inc()
}

func RetryJob() {
	JobsRetriedTotal.Inc()
}

// ObserveBatch records the collected batch size and forward-pass duration.
func ObserveBatch(engine string, size int, dur time.Duration) {
	BatchSizeHistogram.Observe(float64(size))
	InferenceDuration.WithLabelValues(engine).Observe(dur.Seconds())
}
