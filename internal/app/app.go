package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sinefunc/imagery/internal/asset"
	"github.com/sinefunc/imagery/internal/entity"
	gatewayhttp "github.com/sinefunc/imagery/internal/gateway/http"
	"github.com/sinefunc/imagery/internal/metrics"
	"github.com/sinefunc/imagery/internal/repository"
	"github.com/sinefunc/imagery/internal/repository/cmd"
	"github.com/sinefunc/imagery/internal/repository/gcs"
	"github.com/sinefunc/imagery/internal/repository/native"
	"github.com/sinefunc/imagery/internal/repository/s3"
)

type App struct {
	config    Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	backend   asset.Backend
	converter repository.Converter
	missing   *asset.MissingPolicy
	gateway   *gatewayhttp.Gateway
}

// New wires the backend, converter and gateway described by c. Log output
// goes to w.
func New(c Config, w io.Writer) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := NewLogger(c.Log.Level, c.Log.Format, w)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := &App{
		config:    c,
		logger:    logger,
		registry:  reg,
		metrics:   metrics.MustNew(reg),
		converter: newConverter(c),
	}

	app.backend = app.newBackend()

	if c.Missing.Enabled {
		app.missing = &asset.MissingPolicy{Prefix: c.Missing.Prefix}
	}

	gc := gatewayhttp.GatewayConfig{
		Records:   app.Record,
		Address:   c.HTTP.Address,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		BodyLimit: c.HTTP.BodyLimit,
		Logger:    logger,
	}
	if c.Backend != BackendRemote {
		switch root, err := asset.ResolveRoot(c.Root); {
		case err == nil:
			gc.Static = asset.WebRoot(root, app.directory())
		default:
			logger.Warn("static serving disabled", slog.String("error", err.Error()))
		}
	}
	app.gateway = gatewayhttp.New(gc)

	return app, nil
}

func NewLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var l slog.Level
	if level != "" {
		if err := l.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("level: %w", err)
		}
	}

	opts := &slog.HandlerOptions{Level: l}

	switch strings.ToLower(format) {
	case "", LogFormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case LogFormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown format `%s`", format)
	}
}

func newConverter(c Config) repository.Converter {
	if c.Converter.Engine == EngineImaging {
		return native.New()
	}

	return cmd.New(cmd.Config{
		Bin:     c.Converter.Bin,
		Timeout: c.Converter.Timeout,
	})
}

func (a *App) newBackend() asset.Backend {
	switch a.config.Backend {
	case BackendNull:
		return asset.Null{}
	case BackendRemote:
		return asset.NewRemote(asset.RemoteConfig{
			Store:              a.newObjectStore(),
			Bucket:             a.config.Remote.Bucket,
			DistributionDomain: a.config.Remote.DistributionDomain,
			Host:               a.config.Remote.Host,
			Logger:             a.logger,
			Metrics:            a.metrics,
		})
	default:
		return asset.Local{}
	}
}

func (a *App) newObjectStore() repository.ObjectStore {
	r := a.config.Remote

	if r.Provider == ProviderGCS {
		return gcs.New(gcs.StorageConfig{
			CredentialsFile: r.CredentialsFile,
			Timeout:         r.Timeout,
		})
	}

	return s3.New(s3.StorageConfig{
		Endpoint: r.Endpoint,
		Region:   r.Region,
		Timeout:  r.Timeout,
	})
}

func (a *App) directory() string {
	if a.config.Directory == "" {
		return entity.DefaultDirectory
	}

	return a.config.Directory
}

func (a *App) Logger() *slog.Logger {
	return a.logger
}

func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

func (a *App) Sizes() asset.Sizes {
	return asset.NewSizes(a.config.Sizes)
}

// Record builds the record of namespace and key. With the missing policy on,
// the record counts as existing once its default variant is on disk.
func (a *App) Record(namespace, key string) (*asset.Record, error) {
	r, err := asset.New(asset.Config{
		Namespace:      namespace,
		Key:            key,
		Directory:      a.config.Directory,
		Root:           a.config.Root,
		Sizes:          a.config.Sizes,
		DefaultVariant: a.config.DefaultVariant,
		Backend:        a.backend,
		Converter:      a.converter,
		Missing:        a.missing,
		Workers:        a.config.Converter.Workers,
		Logger:         a.logger,
		Metrics:        a.metrics,
	})
	if err != nil {
		return nil, err
	}

	if a.missing != nil {
		if err := a.markExisting(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (a *App) markExisting(r *asset.Record) error {
	file, err := r.File("")
	switch {
	case errors.Is(err, entity.ErrUndefinedRoot):
		return nil
	case err != nil:
		return fmt.Errorf("file: %w", err)
	}

	switch _, err := os.Stat(file); {
	case err == nil:
		r.SetExisting(file)
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("stat: %w", err)
	}

	return nil
}

func (a *App) Run() error {
	if err := a.gateway.Run(); err != nil {
		return fmt.Errorf("http run: %w", err)
	}

	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.gateway.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	return nil
}
