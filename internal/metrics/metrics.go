// ABOUTME: Prometheus instrumentation for the feed
// ABOUTME: Counts snapshots, errors and file writes and exposes /metrics
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/quidditchlive/overlay-feed/internal/sink"
	"github.com/quidditchlive/overlay-feed/internal/timesync"
)

// Write outcomes used as the result label
const (
	ResultWritten   = "written"
	ResultUnchanged = "unchanged"
	ResultRemoved   = "removed"
	ResultError     = "error"
)

// Metrics holds every collector on a private registry
type Metrics struct {
	registry *prometheus.Registry

	snapshots    prometheus.Counter
	serverErrors prometheus.Counter
	tickErrors   prometheus.Counter
	fileWrites   *prometheus.CounterVec
	clockOffset  prometheus.Gauge
	timekeeper   prometheus.Gauge
}

// New creates and registers the collectors
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{registry: registry}

	m.snapshots = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlayfeed_snapshots_total",
		Help: "Complete match snapshots received",
	})

	m.serverErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlayfeed_server_errors_total",
		Help: "Error events sent by the broadcast server",
	})

	m.tickErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlayfeed_tick_errors_total",
		Help: "Game clock ticks that failed",
	})

	m.fileWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlayfeed_file_writes_total",
		Help: "Output file write requests by field and result",
	}, []string{"field", "result"})

	m.clockOffset = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "overlayfeed_clock_offset_milliseconds",
		Help: "Local clock minus server clock",
	})

	m.timekeeper = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "overlayfeed_timekeeper_connected",
		Help: "1 while the timekeeper heartbeat is fresh",
	})

	registry.MustRegister(
		m.snapshots,
		m.serverErrors,
		m.tickErrors,
		m.fileWrites,
		m.clockOffset,
		m.timekeeper,
		collectors.NewGoCollector(),
	)

	return m
}

// SnapshotReceived counts one complete push
func (m *Metrics) SnapshotReceived() {
	m.snapshots.Inc()
}

// ServerError counts one err event
func (m *Metrics) ServerError(string) {
	m.serverErrors.Inc()
}

// TickError counts one failed clock tick
func (m *Metrics) TickError(error) {
	m.tickErrors.Inc()
}

// SetOffset records the clock offset
func (m *Metrics) SetOffset(offset timesync.Offset) {
	m.clockOffset.Set(float64(offset))
}

// SetTimekeeper records timekeeper liveness
func (m *Metrics) SetTimekeeper(connected bool) {
	if connected {
		m.timekeeper.Set(1)
	} else {
		m.timekeeper.Set(0)
	}
}

// ObserveWrite counts one sink result
func (m *Metrics) ObserveWrite(res sink.Result) {
	result := ResultUnchanged
	switch {
	case res.Err != nil:
		result = ResultError
	case res.Removed:
		result = ResultRemoved
	case res.Written:
		result = ResultWritten
	}
	m.fileWrites.WithLabelValues(string(res.Field), result).Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
