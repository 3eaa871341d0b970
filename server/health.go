package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aep/cursorkv/level"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var promRegistry *prometheus.Registry

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	storeOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_op_duration_seconds",
			Help:    "Duration of store operations",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 0.2, 0.5, 1, 1.5, 2},
		},
		[]string{"operation"},
	)

	storeOpFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_op_failures_total",
			Help: "Total number of failed store operations",
		},
		[]string{"operation", "error_type"},
	)

	cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "read_cache_hits_total",
			Help: "Gets answered from the read cache",
		},
	)
)

func init() {
	promRegistry = prometheus.NewRegistry()

	promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promRegistry.MustRegister(collectors.NewGoCollector())

	promRegistry.MustRegister(httpRequestsTotal)
	promRegistry.MustRegister(httpRequestDuration)
	promRegistry.MustRegister(storeOpDuration)
	promRegistry.MustRegister(storeOpFailures)
	promRegistry.MustRegister(cacheHits)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, level.ErrNotFound):
		return "not_found"
	case errors.Is(err, level.ErrInvalidKey), errors.Is(err, level.ErrInvalidValue), errors.Is(err, level.ErrInvalidOp):
		return "invalid"
	}
	return "internal"
}

func observe(op string, start time.Time, err error) {
	storeOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		storeOpFailures.WithLabelValues(op, errorType(err)).Inc()
	}
}

func (s *server) statsd(addr string) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		err := s.store.Ping()
		if err != nil {
			w.WriteHeader(503)
			w.Write([]byte(err.Error()))
			return
		}

		w.Write([]byte("OK"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}

// PrometheusMiddleware records HTTP request metrics
func PrometheusMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		err := next(c)

		duration := time.Since(start).Seconds()
		status := c.Response().Status
		if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
		}
		method := c.Request().Method
		// route pattern, not the key
		path := c.Path()

		httpRequestsTotal.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Inc()
		httpRequestDuration.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Observe(duration)

		return err
	}
}
