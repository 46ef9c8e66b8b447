// Package metrics exposes import pipeline measurements to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/RosterImport/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roster_import"

// Recorder implements core.Recorder with Prometheus collectors.
type Recorder struct {
	registry *prometheus.Registry

	uploads        *prometheus.CounterVec
	uploadDuration prometheus.Histogram
	rowsValidated  *prometheus.CounterVec
	rowsCommitted  *prometheus.CounterVec
	commits        *prometheus.CounterVec
	commitDuration prometheus.Histogram
	cellsCorrected prometheus.Counter
	sessionsOpen   prometheus.Gauge
}

// New registers the import collectors, plus the Go and process collectors,
// on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Workbook uploads by outcome.",
		}, []string{"success"}),
		uploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Time to parse and validate a workbook.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		rowsValidated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_validated_total",
			Help:      "Validated rows by entity type and row status.",
		}, []string{"entity", "status"}),
		rowsCommitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_committed_total",
			Help:      "Rows dispatched at commit by entity type and outcome.",
		}, []string{"entity", "outcome"}),
		commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Commit runs by outcome.",
		}, []string{"success"}),
		commitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Duration of commit runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		cellsCorrected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_autocorrected_total",
			Help:      "Cells changed by auto-correct.",
		}),
		sessionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Import sessions currently held, including expired ones not yet swept.",
		}),
	}
}

func (r *Recorder) UploadFinished(ok bool, d time.Duration) {
	r.uploads.WithLabelValues(strconv.FormatBool(ok)).Inc()
	r.uploadDuration.Observe(d.Seconds())
}

func (r *Recorder) RowsValidated(entity core.EntityType, status core.CellStatus, n int) {
	r.rowsValidated.WithLabelValues(string(entity), status.String()).Add(float64(n))
}

func (r *Recorder) RowCommitted(entity core.EntityType, outcome string) {
	r.rowsCommitted.WithLabelValues(string(entity), outcome).Inc()
}

func (r *Recorder) CommitFinished(ok bool, d time.Duration) {
	r.commits.WithLabelValues(strconv.FormatBool(ok)).Inc()
	r.commitDuration.Observe(d.Seconds())
}

func (r *Recorder) CellsCorrected(n int) {
	r.cellsCorrected.Add(float64(n))
}

func (r *Recorder) SessionsOpen(n int) {
	r.sessionsOpen.Set(float64(n))
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var _ core.Recorder = (*Recorder)(nil)
