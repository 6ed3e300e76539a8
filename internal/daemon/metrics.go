package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studenttester_jobs_total",
			Help: "Total number of grading jobs",
		},
		[]string{"status"}, // graded, failed, store_failed
	)

	GradeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "studenttester_grade_duration_seconds",
			Help:    "Time to grade one submission",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	GradePercent = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "studenttester_grade_percent",
			Help:    "Overall grade of graded submissions",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studenttester_active_jobs",
			Help: "Number of grade processes currently running",
		},
	)
)

// serveMetrics exposes /metrics on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server failed", "addr", addr, "err", err)
	}
}
