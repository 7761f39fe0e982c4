package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/apexops/dashboard/internal/api"
	"github.com/apexops/dashboard/internal/config"
	"github.com/apexops/dashboard/internal/emitter"
	"github.com/apexops/dashboard/internal/logging"
	"github.com/apexops/dashboard/internal/metrics"
	"github.com/apexops/dashboard/internal/realtime"
	"github.com/apexops/dashboard/internal/relay"
	"github.com/apexops/dashboard/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serve(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	clock := clockwork.NewRealClock()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry := realtime.NewRegistry(
		realtime.WithSendBuffer(cfg.Realtime.SendBuffer),
		realtime.WithMaxConnections(cfg.Server.MaxConnections),
		realtime.WithWriteTimeout(cfg.Realtime.WriteTimeout),
		realtime.WithPingInterval(cfg.Realtime.PingInterval),
		realtime.WithLogger(logging.Component(log, "realtime")),
		realtime.WithMetrics(metrics.NewRealtime(promReg)),
	)
	defer registry.Close()

	st, err := openStore(ctx, cfg.Store, clock, logging.Component(log, "store"))
	if err != nil {
		return err
	}
	defer st.Close()

	g, gctx := errgroup.WithContext(ctx)

	var broadcaster realtime.Broadcaster = registry
	if cfg.Redis.URL != "" {
		rdb, err := relay.Dial(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		bus := relay.New(rdb, cfg.Redis.Channel, registry, log)
		broadcaster = bus
		g.Go(func() error { return bus.Run(gctx) })
		log.Info().Str("channel", cfg.Redis.Channel).Str("origin", bus.Origin()).Msg("redis relay enabled")
	}

	em := emitter.New(broadcaster,
		emitter.WithSampler(newSampler(cfg.Stats.Sampler)),
		emitter.WithClock(clock),
		emitter.WithInterval(cfg.Stats.Interval),
		emitter.WithLogger(logging.Component(log, "emitter")),
	)
	g.Go(func() error { return em.Run(gctx) })

	srv := api.New(api.Options{
		Store:       st,
		Broadcaster: broadcaster,
		Logger:      logging.Component(log, "api"),
		Clock:       clock,
		Environment: cfg.Server.Environment,
		AuthToken:   cfg.Server.AuthToken,
		Realtime: realtime.NewHandler(registry, realtime.HandlerConfig{
			AuthToken:      cfg.Server.AuthToken,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			PongTimeout:    cfg.Realtime.PongTimeout,
			Logger:         logging.Component(log, "ws"),
		}),
		Gatherer:    promReg,
		HTTPMetrics: metrics.NewHTTP(promReg),
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Str("store", cfg.Store.Driver).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, clock clockwork.Clock, log zerolog.Logger) (store.Store, error) {
	var st store.Store
	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := store.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		st = pg
	default:
		st = store.NewMemory(clock)
	}

	if !cfg.Seed {
		return st, nil
	}
	existing, err := st.ListAgents(ctx, "")
	if err != nil {
		st.Close()
		return nil, errors.Wrap(err, "check for existing data")
	}
	if len(existing) > 0 {
		return st, nil
	}
	if err := store.Seed(ctx, st, clock.Now()); err != nil {
		st.Close()
		return nil, err
	}
	log.Info().Str("driver", cfg.Driver).Msg("seeded demo data")
	return st, nil
}

func newSampler(kind string) emitter.Sampler {
	synthetic := emitter.NewSyntheticSampler(nil)
	if kind == config.SamplerHost {
		return emitter.NewHostSampler(synthetic)
	}
	return synthetic
}
