package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/utrack/statlens/internal/buffer"
	"github.com/utrack/statlens/internal/capture"
	"github.com/utrack/statlens/internal/config"
	"github.com/utrack/statlens/internal/httpapi"
	"github.com/utrack/statlens/internal/metrics"
	"github.com/utrack/statlens/internal/model"
	"github.com/utrack/statlens/internal/realtime"
	"github.com/utrack/statlens/internal/stream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runtime wires the stream client, controller, watch registry and API server together.
type Runtime struct {
	cfg        config.Config
	logger     *zap.Logger
	registry   *capture.Registry
	controller *realtime.Controller
	server     *http.Server
}

func New(cfg config.Config, logger *zap.Logger) (*Runtime, error) {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	tokens, err := cfg.Auth.TokenSource(context.Background())
	if err != nil {
		return nil, fmt.Errorf("build credential provider: %w", err)
	}
	if tokens == nil {
		logger.Warn("no upstream credential configured, stream will not open")
	}

	client := stream.NewClient(tokens,
		stream.WithLogger(logger.Named("stream")),
		stream.WithMetrics(m),
		stream.WithBackOff(cfg.Upstream.RetryInitial, cfg.Upstream.RetryMax, cfg.Upstream.RetryMaxElapsed),
		stream.WithReconnectDelay(cfg.Upstream.ReconnectDelay),
	)

	registry := capture.NewRegistry(cfg.MaxConcurrentViews, m)
	controller, err := realtime.New(realtime.Config{
		Endpoint:         cfg.Upstream.Endpoint,
		GranularityParam: cfg.Upstream.GranularityParam,
		Initial:          model.Granularity(cfg.Upstream.Granularity),
		Capacity:         buffer.DefaultCapacity,
		NotifyInterval:   cfg.Upstream.NotifyInterval,
	}, client, registry, logger.Named("realtime"), m)
	if err != nil {
		return nil, err
	}

	handler := httpapi.NewHandler(controller, registry, promRegistry, cfg.SessionBufferSize, logger.Named("httpapi"))
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		controller: controller,
		server: &http.Server{
			Addr:              cfg.HTTPAddress,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Handler returns the API router.
func (r *Runtime) Handler() http.Handler { return r.server.Handler }

// Run serves the API and keeps the upstream stream open until ctx is done.
// A failed initial stream open is logged, not fatal: the API stays up and a
// granularity change retries.
func (r *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	r.server.BaseContext = func(net.Listener) context.Context { return ctx }

	g.Go(func() error {
		if err := r.controller.Start(ctx); err != nil {
			r.logger.Error("initial stream open failed", zap.Error(err))
		}
		<-ctx.Done()
		r.controller.Close()
		return nil
	})

	g.Go(func() error {
		r.logger.Info("statlens API listening", zap.String("addr", r.server.Addr))
		if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("statlens API server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
		defer cancel()
		if err := r.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown API server: %w", err)
		}
		r.logger.Info("statlens API stopped")
		return nil
	})

	return g.Wait()
}
