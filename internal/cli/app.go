package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"fpoadmin/internal/blob"
	"fpoadmin/internal/config"
	"fpoadmin/internal/core"
	"fpoadmin/internal/editor"
	"fpoadmin/internal/gateway"
	"fpoadmin/internal/logger"
	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

// app holds the dependencies shared by commands. Heavy resources are opened
// on first use and released by close.
type app struct {
	cfg      *config.Config
	zap      *zap.Logger
	log      logger.Logger
	registry *attribute.Registry
	stdout   io.Writer
	stderr   io.Writer

	svc      *core.Service
	gatherer prometheus.Gatherer
	gw       domain.Gateway
	closers  []func(context.Context) error
}

func newApp(opts *rootOptions, stdout, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: opts.configFile, EnvFile: opts.envFile})
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	zl, _, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:    cfg,
		zap:    zl,
		log:    logger.Adapt(zl),
		stdout: stdout,
		stderr: stderr,
	}
	a.registry, err = loadRegistry(cfg.SchemaFile)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func loadRegistry(path string) (*attribute.Registry, error) {
	registry := attribute.DefaultRegistry()
	if path == "" {
		return registry, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema file: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := registry.LoadYAML(f); err != nil {
		return nil, fmt.Errorf("load schema file %s: %w", path, err)
	}
	return registry, nil
}

// service opens the configured record store and wraps it with the
// observability stack.
func (a *app) service(ctx context.Context) (*core.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	store, closer, err := core.OpenPersistentStore(ctx, core.StorageOptions{
		Driver:      core.StorageDriver(a.cfg.Storage.Driver),
		SQLitePath:  a.cfg.Storage.SQLitePath,
		PostgresDSN: a.cfg.Storage.PostgresDSN,
	}, core.NewDefaultRulesEngine(), a.registry)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Storage.Driver, err)
	}
	a.closers = append(a.closers, func(context.Context) error { return closer.Close() })

	opts := []core.Option{
		core.WithLogger(a.log),
		core.WithAuditRecorder(core.LogAuditRecorder{Logger: a.log}),
	}
	var recorders core.MultiMetricsRecorder
	if a.cfg.Metrics.Prometheus {
		reg := prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, rec)
		a.gatherer = reg
	}
	if a.cfg.Metrics.Expvar {
		recorders = append(recorders, core.NewExpvarMetricsRecorder(""))
	}
	if len(recorders) > 0 {
		opts = append(opts, core.WithMetricsRecorder(recorders))
	}

	switch a.cfg.Tracing.Exporter {
	case "json":
		opts = append(opts, core.WithTracer(core.NewJSONTracer(a.stderr)))
	case "stdout":
		tp, err := core.StdoutTracerProvider(a.stderr, a.cfg.Tracing.ServiceName)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, tp.Shutdown)
		opts = append(opts, core.WithTracer(core.NewOTelTracer(tp.Tracer(a.cfg.Tracing.ServiceName))))
	}

	a.svc = core.NewService(store, opts...)
	return a.svc, nil
}

// gateway returns the record gateway: a cached HTTP client when a base URL
// is configured, the local store otherwise.
func (a *app) gateway(ctx context.Context) (domain.Gateway, error) {
	if a.gw != nil {
		return a.gw, nil
	}
	if a.cfg.Gateway.BaseURL == "" {
		svc, err := a.service(ctx)
		if err != nil {
			return nil, err
		}
		a.gw = gateway.NewLocal(svc)
		return a.gw, nil
	}

	remote, err := gateway.NewHTTP(a.cfg.Gateway.BaseURL, gateway.NewSession(a.cfg.Gateway.Token),
		gateway.WithTimeout(a.cfg.Gateway.Timeout))
	if err != nil {
		return nil, err
	}
	switch a.cfg.Cache.Driver {
	case "memory":
		a.gw = gateway.NewCached(remote, gateway.NewMemoryCache(a.cfg.Cache.TTL), a.log)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Cache.RedisAddr,
			Password: a.cfg.Cache.RedisPassword,
			DB:       a.cfg.Cache.RedisDB,
		})
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		a.gw = gateway.NewCached(remote, gateway.NewRedisCache(client, "", a.cfg.Cache.TTL), a.log)
	default:
		a.gw = remote
	}
	return a.gw, nil
}

// controller returns an editor controller over the configured gateway whose
// notices are printed to stderr.
func (a *app) controller(ctx context.Context) (*editor.Controller, error) {
	gw, err := a.gateway(ctx)
	if err != nil {
		return nil, err
	}
	return editor.New(gw,
		editor.WithRegistry(a.registry),
		editor.WithLogger(a.log),
		editor.WithNotifier(editor.NotifierFunc(func(level editor.NoticeLevel, message string) {
			_, _ = fmt.Fprintf(a.stderr, "%s: %s\n", level, message)
		})),
	), nil
}

func (a *app) blobStore(ctx context.Context) (blob.Store, error) {
	return blob.Open(ctx, blob.Config{
		Driver:   a.cfg.Blob.Driver,
		Root:     a.cfg.Blob.Root,
		Bucket:   a.cfg.Blob.Bucket,
		Region:   a.cfg.Blob.Region,
		Endpoint: a.cfg.Blob.Endpoint,
		Prefix:   a.cfg.Blob.Prefix,
	})
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	_ = a.zap.Sync()
	return errors.Join(errs...)
}
