// Package stats exposes download and merge metrics for Prometheus and an
// opt-in debug server with pprof handlers.
package stats

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ytget/mediamux/errs"
	"github.com/ytget/mediamux/internal/logger"
)

const namespace = "mediamux"

// Outcome labels.
const (
	OutcomeOK = "ok"
)

// Stats holds the collectors of one process. Methods are nil-safe so callers
// can run without metrics.
type Stats struct {
	registry *prometheus.Registry

	downloads     *prometheus.CounterVec
	bytesFetched  *prometheus.CounterVec
	mergeDuration *prometheus.HistogramVec
	candidates    prometheus.Histogram
	inFlight      prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Stats {
	s := &Stats{
		registry: prometheus.NewRegistry(),
		downloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "downloads_total", Help: "Finished downloads by outcome"},
			[]string{"outcome"},
		),
		bytesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "bytes_fetched_total", Help: "Bytes received per stream"},
			[]string{"stream"},
		),
		mergeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "merge_duration_seconds",
				Help:      "Time from planning to a delivered file",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 180, 300},
			},
			[]string{"path"},
		),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates",
			Help:      "Combined formats available per media item",
			Buckets:   prometheus.LinearBuckets(0, 10, 10),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "downloads_in_flight", Help: "Downloads currently running",
		}),
	}
	s.registry.MustRegister(
		s.downloads, s.bytesFetched, s.mergeDuration, s.candidates, s.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return s
}

// Registry returns the registry the collectors live on.
func (s *Stats) Registry() *prometheus.Registry { return s.registry }

// Started marks a download as running.
func (s *Stats) Started() {
	if s == nil {
		return
	}
	s.inFlight.Inc()
}

// Finished records the outcome of a download started with Started. A nil err
// counts as "ok", anything else by its error kind.
func (s *Stats) Finished(err error, native bool, elapsed time.Duration) {
	if s == nil {
		return
	}
	s.inFlight.Dec()
	outcome := OutcomeOK
	if err != nil {
		outcome = errs.KindOf(err).String()
	}
	s.downloads.WithLabelValues(outcome).Inc()
	if err == nil {
		path := "split"
		if native {
			path = "native"
		}
		s.mergeDuration.WithLabelValues(path).Observe(elapsed.Seconds())
	}
}

// Fetched adds n bytes received for stream.
func (s *Stats) Fetched(stream string, n int) {
	if s == nil || n <= 0 {
		return
	}
	s.bytesFetched.WithLabelValues(stream).Add(float64(n))
}

// Candidates records how many merge candidates one item produced.
func (s *Stats) Candidates(n int) {
	if s == nil {
		return
	}
	s.candidates.Observe(float64(n))
}

// Handler serves the metrics and pprof endpoints.
func (s *Stats) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Serve runs the debug server on addr until ctx is done.
func (s *Stats) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Stats) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	log := logger.WithComponent(logger.ComponentApp)
	log.Info("Starting debug server", map[string]interface{}{"addr": ln.Addr().String()})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		log.Warn("Debug server stopped", map[string]interface{}{"err": err.Error()})
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
