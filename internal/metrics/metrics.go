// Package metrics exposes Prometheus instruments for transfer sessions and
// the HTTP handler that serves them.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1ureka/sendfile/internal/util"
)

const namespace = "sendfile"

// Session outcomes used as the "outcome" label.
const (
	OutcomeFinished = "finished"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds the instruments one process reports.
type Metrics struct {
	registry *prometheus.Registry

	sessionsTotal   *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	activeSessions  *prometheus.GaugeVec
	filesTotal      *prometheus.CounterVec
	bytesTotal      *prometheus.CounterVec
	sizeMismatches  prometheus.Counter
}

// New registers every instrument on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		sessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions ended, by role and outcome",
		}, []string{"role", "outcome"}),

		sessionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time from stream open to terminal state",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~43min
		}, []string{"role"}),

		activeSessions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently running",
		}, []string{"role"}),

		filesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files fully transferred",
		}, []string{"role"}),

		bytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_bytes_total",
			Help:      "File content bytes transferred",
		}, []string{"role"}),

		sizeMismatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "size_mismatches_total",
			Help:      "Received files whose streamed size differed from the announced size",
		}),
	}
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// SessionStarted marks a session of role as running and returns the function
// that records its end. A nil Metrics is a no-op.
func (m *Metrics) SessionStarted(role string) func(outcome string) {
	if m == nil {
		return func(string) {}
	}

	start := time.Now()
	m.activeSessions.WithLabelValues(role).Inc()
	return func(outcome string) {
		m.activeSessions.WithLabelValues(role).Dec()
		m.sessionsTotal.WithLabelValues(role, outcome).Inc()
		m.sessionDuration.WithLabelValues(role).Observe(time.Since(start).Seconds())
	}
}

// FileTransferred counts one completed file of n content bytes.
func (m *Metrics) FileTransferred(role string, n uint64, mismatch bool) {
	if m == nil {
		return
	}
	m.filesTotal.WithLabelValues(role).Inc()
	m.bytesTotal.WithLabelValues(role).Add(float64(n))
	if mismatch {
		m.sizeMismatches.Inc()
	}
}

// Handler routes /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return r
}

// Serve exposes Handler on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: m.Handler(), ReadHeaderTimeout: 10 * time.Second}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	util.LogInfo("metrics listening on http://%s/metrics", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
