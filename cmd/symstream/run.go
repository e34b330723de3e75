package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ggoodman/symstream"
	"github.com/ggoodman/symstream/auth"
	"github.com/ggoodman/symstream/broker"
	"github.com/ggoodman/symstream/broker/memorybroker"
	"github.com/ggoodman/symstream/broker/redisbroker"
	"github.com/ggoodman/symstream/metrics/prommetrics"
	"github.com/ggoodman/symstream/sessions"
	"github.com/ggoodman/symstream/sessions/memoryhost"
	"github.com/ggoodman/symstream/sessions/redishost"
	"github.com/ggoodman/symstream/stdio"
	"github.com/ggoodman/symstream/streamhttp"
	"github.com/ggoodman/symstream/supply"
	"github.com/ggoodman/symstream/supply/memorysupply"
	"github.com/ggoodman/symstream/supply/redissupply"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type backends struct {
	store supply.Store
	host  sessions.Host
	bus   broker.Broker
	close func() error
}

// openBackends picks Redis when an address is configured and memory otherwise.
func openBackends(ctx context.Context, cfg symstream.Config) (*backends, error) {
	if cfg.RedisAddr == "" {
		return &backends{
			store: memorysupply.New(),
			host:  memoryhost.New(),
			bus:   memorybroker.New(),
			close: func() error { return nil },
		}, nil
	}
	cl := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &backends{
		store: redissupply.NewWithClient(cl, cfg.KeyPrefix),
		host:  redishost.NewWithClient(cl, cfg.KeyPrefix),
		bus:   redisbroker.New(cl, cfg.KeyPrefix),
		close: cl.Close,
	}, nil
}

// buildAuthenticator returns nil when no bearer authentication is configured.
func buildAuthenticator(ctx context.Context, cfg symstream.Config) (auth.Authenticator, error) {
	aud := auth.WithAudiences(cfg.PublicURL)
	switch {
	case cfg.HMACSecret != "":
		return auth.NewHMAC([]byte(cfg.HMACSecret), aud)
	case cfg.OIDCIssuer != "":
		return auth.NewFromDiscovery(ctx, cfg.OIDCIssuer, aud)
	case cfg.JWKSURL != "":
		return auth.NewFromJWKS(ctx, cfg.JWKSURL, aud)
	}
	return nil, nil
}

func run(ctx context.Context, cfg symstream.Config, log *slog.Logger, stdout io.Writer) error {
	devOpts, err := cfg.DeviceOptions()
	if err != nil {
		return err
	}

	be, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.close(); err != nil {
			log.Warn("backends.close.fail", slog.String("err", err.Error()))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	devOpts = append(devOpts,
		symstream.WithStore(be.store),
		symstream.WithLogger(log),
		symstream.WithMetrics(prommetrics.New(reg, "symstream")),
	)
	dev, err := symstream.Register(ctx, cfg.Name, devOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("device.close.fail", slog.String("err", err.Error()))
		}
	}()

	if cfg.Listen == "" {
		h := stdio.NewHandler(dev,
			stdio.WithWriter(stdout),
			stdio.WithLogger(log),
			stdio.WithBlockSize(cfg.BlockSize),
			stdio.WithCount(cfg.Count),
		)
		_, err := h.Serve(ctx)
		return err
	}
	return serveHTTP(ctx, cfg, log, dev, be, reg)
}

func serveHTTP(ctx context.Context, cfg symstream.Config, log *slog.Logger, dev *symstream.Device, be *backends, reg *prometheus.Registry) error {
	authenticator, err := buildAuthenticator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("configure authentication: %w", err)
	}

	opts := []streamhttp.Option{
		streamhttp.WithLogger(log),
		streamhttp.WithSessionTTL(cfg.SessionTTL),
		streamhttp.WithBroker(be.bus),
	}
	if authenticator != nil {
		opts = append(opts, streamhttp.WithAuthenticator(authenticator))
	}
	if cfg.OIDCIssuer != "" {
		opts = append(opts, streamhttp.WithAuthorizationServers([]string{cfg.OIDCIssuer}))
	}
	if cfg.SessionKey != "" {
		seed, err := hex.DecodeString(cfg.SessionKey)
		if err != nil {
			return fmt.Errorf("decode session key: %w", err)
		}
		opts = append(opts, streamhttp.WithSessionKey(seed))
	}

	g, gctx := errgroup.WithContext(ctx)

	h, err := streamhttp.New(gctx, cfg.PublicURL, dev, be.host, opts...)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", h)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("http.listen.start", slog.String("addr", cfg.Listen), slog.String("endpoint", cfg.PublicURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		log.Info("http.shutdown.start")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
