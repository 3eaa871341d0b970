package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aep/cursorkv/api"
	"github.com/aep/cursorkv/bus"
	"github.com/aep/cursorkv/config"
	"github.com/aep/cursorkv/idb"
	"github.com/aep/cursorkv/level"
	"github.com/aep/cursorkv/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/maypok86/otter"
	"golang.org/x/sync/errgroup"
)

var log = logging.New()

type server struct {
	store *level.Store
	bs    bus.Bus
	// cache holds values as returned by a Get with default options.
	// nil when disabled.
	cache *otter.Cache[string, level.Value]
}

func newServer(store *level.Store, bs bus.Bus, cacheSize int, ttl time.Duration) (*server, error) {
	s := &server{
		store: store,
		bs:    bs,
	}
	if cacheSize > 0 {
		cache, err := otter.MustBuilder[string, level.Value](cacheSize).
			WithTTL(ttl).
			Build()
		if err != nil {
			return nil, err
		}
		s.cache = &cache
	}
	return s, nil
}

// Handler serves store over http without the metrics listener. The returned
// func releases the read cache.
func Handler(store *level.Store, bs bus.Bus, cacheSize int, ttl time.Duration) (http.Handler, func(), error) {
	s, err := newServer(store, bs, cacheSize, ttl)
	if err != nil {
		return nil, nil, err
	}
	return s.echo(), s.close, nil
}

func (s *server) close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

func (s *server) echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Binder = &Binder{
		defaultBinder: &echo.DefaultBinder{},
	}

	e.Use(middleware.Recover())
	e.Use(TracingMiddleware)
	e.Use(PrometheusMiddleware)

	e.GET("/v1/kv/*", s.handleGet)
	e.PUT("/v1/kv/*", s.handlePut)
	e.DELETE("/v1/kv/*", s.handleDelete)
	e.POST("/v1/batch", s.handleBatch)
	e.GET("/v1/range", s.handleRange)
	e.GET("/v1/size", s.handleSize)

	return e
}

func (s *server) invalidate(keys ...string) {
	if s.cache == nil {
		return
	}
	for _, k := range keys {
		s.cache.Delete(k)
	}
}

func (s *server) publish(op string, keys ...string) {
	b, err := json.Marshal(&api.Change{Op: op, Keys: keys})
	if err != nil {
		return
	}
	if err := s.bs.Send(bus.ChangesTopic, b); err != nil {
		log.Warn("publish change", "op", op, "err", err)
	}
}

// httpError maps store errors to status codes.
func httpError(err error) error {
	var code int
	switch {
	case errors.Is(err, level.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, level.ErrInvalidKey),
		errors.Is(err, level.ErrInvalidValue),
		errors.Is(err, level.ErrInvalidOp),
		errors.Is(err, idb.ErrData):
		code = http.StatusBadRequest
	case errors.Is(err, level.ErrNotImplemented):
		code = http.StatusNotImplemented
	case errors.Is(err, level.ErrNotOpen), errors.Is(err, idb.ErrClosed):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	default:
		code = http.StatusInternalServerError
	}
	return echo.NewHTTPError(code, err.Error())
}

func openBus(cfg *config.Config) (bus.Bus, func(), error) {
	if cfg.EmbeddedNats {
		e, err := bus.NewEmbeddedNats("127.0.0.1", -1)
		if err != nil {
			return nil, nil, err
		}
		n, err := bus.ConnectNats(e.URL())
		if err != nil {
			e.Shutdown()
			return nil, nil, err
		}
		return n, func() { n.Close(); e.Shutdown() }, nil
	}
	if cfg.NatsURL != "" {
		n, err := bus.ConnectNats(cfg.NatsURL)
		if err != nil {
			return nil, nil, err
		}
		return n, n.Close, nil
	}
	solo := bus.NewSolo()
	return solo, solo.Close, nil
}

// Main serves the configured store until ctx is done.
func Main(ctx context.Context, cfg *config.Config) error {
	shutdownTracer, err := initTracer(ctx, cfg.OtelEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	store, closeStore, err := cfg.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	bs, closeBus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer closeBus()

	s, err := newServer(store, bs, cfg.CacheSize, cfg.CacheTTL)
	if err != nil {
		return err
	}
	defer s.close()

	e := s.echo()
	hs := s.statsd(cfg.MetricsListen)

	log.Info("serving", "listen", cfg.Listen, "metrics", cfg.MetricsListen, "engine", cfg.Engine, "db", store.Name())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.Start(cfg.Listen); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(e.Shutdown(sctx), hs.Shutdown(sctx))
	})
	return g.Wait()
}
