package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"github.com/joomcode/errorx"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/joomcode/redisrouter/redis"
	"github.com/joomcode/redisrouter/rediscluster"
	"github.com/joomcode/redisrouter/redisconn"
)

type app struct {
	v      *viper.Viper
	level  zap.AtomicLevel
	logger *zap.Logger
}

type config struct {
	seeds           []string
	poolSize        int
	password        string
	db              int
	autoReconnect   bool
	seedPolicy      rediscluster.SeedPolicy
	allowNoReplicas bool
	metricsAddr     string
	connectTimeout  time.Duration
}

func (a *app) readConfig() (*config, error) {
	cfg := &config{
		seeds:           a.v.GetStringSlice("seeds"),
		poolSize:        a.v.GetInt("pool-size"),
		password:        a.v.GetString("password"),
		db:              a.v.GetInt("db"),
		autoReconnect:   a.v.GetBool("auto-reconnect"),
		allowNoReplicas: a.v.GetBool("allow-no-replicas"),
		metricsAddr:     a.v.GetString("metrics-addr"),
		connectTimeout:  a.v.GetDuration("connect-timeout"),
	}
	policy, err := rediscluster.ParseSeedPolicy(a.v.GetString("seed-policy"))
	if err != nil {
		return nil, ErrBadConfig.Wrap(err, "invalid seed-policy")
	}
	cfg.seedPolicy = policy
	if len(cfg.seeds) == 0 {
		return nil, ErrBadConfig.New("at least one seed is required")
	}
	if cfg.poolSize <= 0 {
		return nil, ErrBadConfig.New("pool-size should be positive, got %d", cfg.poolSize)
	}

	a.logger.Debug("parsed configuration",
		zap.Strings("seeds", cfg.seeds),
		zap.Int("pool-size", cfg.poolSize),
		zap.Int("db", cfg.db),
		zap.Bool("auto-reconnect", cfg.autoReconnect),
		zap.Stringer("seed-policy", cfg.seedPolicy),
		zap.String("metrics-addr", cfg.metricsAddr))
	return cfg, nil
}

// telemetry exports otel metrics through prometheus registry.
type telemetry struct {
	registry      *promclient.Registry
	meterProvider *sdkmetric.MeterProvider
}

func initTelemetry() (*telemetry, error) {
	registry := promclient.NewRegistry()
	promExp, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExp))
	otel.SetMeterProvider(meterProvider)
	return &telemetry{registry: registry, meterProvider: meterProvider}, nil
}

func (t *telemetry) Shutdown(ctx context.Context) error {
	return t.meterProvider.Shutdown(ctx)
}

// startTelemetry initializes metrics and serves them on cfg.metricsAddr if it is set.
// Returned function stops everything.
func (a *app) startTelemetry(cfg *config, extra func(r *mux.Router)) (*telemetry, func(), error) {
	t, err := initTelemetry()
	if err != nil {
		return nil, nil, err
	}
	var srv *http.Server
	if cfg.metricsAddr != "" {
		r := mux.NewRouter()
		r.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))
		if extra != nil {
			extra(r)
		}
		srv = &http.Server{
			Handler:      r,
			Addr:         cfg.metricsAddr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			a.logger.Info("serving metrics", zap.String("address", cfg.metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if srv != nil {
			_ = srv.Shutdown(ctx)
		}
		_ = t.Shutdown(ctx)
	}
	return t, stop, nil
}

// connect creates pool, retrying with exponential backoff for cfg.connectTimeout.
func (a *app) connect(ctx context.Context, cfg *config, t *telemetry) (*rediscluster.Pool, error) {
	opts := rediscluster.Opts{
		PoolSize:        cfg.poolSize,
		Password:        cfg.password,
		DB:              cfg.db,
		AutoReconnect:   cfg.autoReconnect,
		Encoder:         redis.StringEncoder{},
		SeedPolicy:      cfg.seedPolicy,
		AllowNoReplicas: cfg.allowNoReplicas,
		Name:            "redisrouter",
		Logger:          rediscluster.NewZapLogger(a.logger),
		HostOpts: redisconn.Opts{
			Logger: redisconn.ZapLogger{L: a.logger},
		},
	}
	if t != nil {
		opts.MeterProvider = t.meterProvider
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = cfg.connectTimeout

	var pool *rediscluster.Pool
	operation := func() error {
		p, err := rediscluster.NewPool(ctx, cfg.seeds, opts)
		if err != nil {
			if cfg.connectTimeout == 0 || errorx.IsOfType(err, rediscluster.ErrConfiguration) {
				return backoff.Permanent(err)
			}
			a.logger.Warn("failed to connect to cluster, will retry", zap.Error(err))
			return err
		}
		pool = p
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return pool, nil
}

// withPool runs f with connected pool and closes it after.
func (a *app) withPool(ctx context.Context, f func(cfg *config, pool *rediscluster.Pool) error) error {
	cfg, err := a.readConfig()
	if err != nil {
		return err
	}
	t, stop, err := a.startTelemetry(cfg, nil)
	if err != nil {
		return err
	}
	defer stop()

	pool, err := a.connect(ctx, cfg, t)
	if err != nil {
		a.logger.Error("failed to connect to cluster", zap.Error(err))
		return err
	}
	defer pool.Close()
	return f(cfg, pool)
}
