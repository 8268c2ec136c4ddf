// Package telemetry exposes CodexLens' build/search activity as
// Prometheus metrics (grounded on the --metrics-addr / promhttp pattern
// from the code-intelligence example in the retrieval pack), served over
// an optional HTTP listener rather than wired into every call site.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codexlens/codexlens/internal/chainsearch"
)

// Recorder owns the process' Prometheus registry and the counters/
// histograms CodexLens reports into it.
type Recorder struct {
	registry *prometheus.Registry

	searchesTotal   *prometheus.CounterVec
	searchStageSecs *prometheus.HistogramVec
	searchFallback  *prometheus.CounterVec
	buildFilesTotal prometheus.Counter
	buildDirsTotal  prometheus.Counter
	buildDuration   prometheus.Histogram
	buildErrors     prometheus.Counter
}

// New constructs a Recorder with its own registry (not the global default,
// so multiple Recorders never collide in tests).
func New() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		searchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codexlens", Subsystem: "search", Name: "queries_total",
			Help: "Total search queries handled, by mode (standard/cascade).",
		}, []string{"mode"}),
		searchStageSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codexlens", Subsystem: "search", Name: "stage_duration_seconds",
			Help:    "Per-stage search latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		searchFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codexlens", Subsystem: "search", Name: "stage1_fallback_total",
			Help: "Stage-1 coarse retrieval outcomes, by fallback tier used.",
		}, []string{"fallback"}),
		buildFilesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codexlens", Subsystem: "build", Name: "files_indexed_total",
			Help: "Files indexed across all builds.",
		}),
		buildDirsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codexlens", Subsystem: "build", Name: "dirs_indexed_total",
			Help: "Directories indexed across all builds.",
		}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "codexlens", Subsystem: "build", Name: "duration_seconds",
			Help:    "Wall-clock duration of a full tree build.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		buildErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codexlens", Subsystem: "build", Name: "errors_total",
			Help: "Per-directory build errors across all builds.",
		}),
	}

	reg.MustRegister(
		r.searchesTotal, r.searchStageSecs, r.searchFallback,
		r.buildFilesTotal, r.buildDirsTotal, r.buildDuration, r.buildErrors,
	)
	return r
}

// RecordSearch folds a completed ChainSearchResult's Stats into the
// search metrics, tagging standard vs. cascade search by whether any
// stage timings were recorded (standard search records "text_search"/
// "vector_search"; cascade records "stage1_coarse" etc.).
func (r *Recorder) RecordSearch(stats chainsearch.Stats) {
	mode := "standard"
	if _, ok := stats.StageTimings["stage1_coarse"]; ok {
		mode = "cascade"
	}
	r.searchesTotal.WithLabelValues(mode).Inc()

	for stage, d := range stats.StageTimings {
		r.searchStageSecs.WithLabelValues(stage).Observe(d.Seconds())
	}
	if stats.Fallback != "" {
		r.searchFallback.WithLabelValues(stats.Fallback).Inc()
	}
}

// RecordBuild records one completed tree build's totals.
func (r *Recorder) RecordBuild(filesIndexed, dirsBuilt, errorCount int, duration time.Duration) {
	r.buildFilesTotal.Add(float64(filesIndexed))
	r.buildDirsTotal.Add(float64(dirsBuilt))
	r.buildErrors.Add(float64(errorCount))
	r.buildDuration.Observe(duration.Seconds())
}

// Handler returns an http.Handler exposing the recorder's metrics in the
// Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server on addr exposing /metrics until ctx is
// canceled. Matches the teacher pack's "--metrics-addr :9090, empty to
// disable" convention: callers should simply not call Serve when no
// address was configured.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
