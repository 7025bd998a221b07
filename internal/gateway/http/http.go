package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sinefunc/imagery/internal/asset"
	"github.com/sinefunc/imagery/internal/entity"
)

const DefaultBodyLimit = "32M"

// RecordFactory builds the record of namespace and key with the process wide
// configuration applied.
type RecordFactory func(namespace, key string) (*asset.Record, error)

type Gateway struct {
	records RecordFactory
	echo    *echo.Echo
	address string
	locks   *keyedMutex
	logger  *slog.Logger
}

type GatewayConfig struct {
	Records RecordFactory
	Address string
	// Static is served at / when set, the web root of the local backend.
	Static string
	// Metrics is mounted at /metrics when set.
	Metrics   http.Handler
	BodyLimit string
	Logger    *slog.Logger
}

type variantResponse struct {
	URL  string `json:"url"`
	File string `json:"file"`
}

func New(c GatewayConfig) *Gateway {
	if c.BodyLimit == "" {
		c.BodyLimit = DefaultBodyLimit
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	g := &Gateway{
		records: c.Records,
		echo:    e,
		address: c.Address,
		locks:   newKeyedMutex(),
		logger:  c.Logger,
	}

	e.Use(
		middleware.Recover(),
		middleware.Logger(),
	)

	assets := e.Group("/assets", middleware.BodyLimit(c.BodyLimit))
	assets.GET("/:namespace/:key", g.hdlrAssetURLs)
	assets.GET("/:namespace/:key/:variant", g.hdlrAssetVariant)
	assets.POST("/:namespace/:key", g.hdlrAssetSave)
	assets.DELETE("/:namespace/:key", g.hdlrAssetDelete)

	if c.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(c.Metrics))
	}
	if c.Static != "" {
		e.Static("/", c.Static)
	}

	return g
}

func (g *Gateway) Handler() http.Handler {
	return g.echo
}

func (g *Gateway) Run() error {
	g.logger.Info("http gateway listening", slog.String("address", g.address))

	if err := g.echo.Start(g.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.echo.Shutdown(ctx)
}

func (g *Gateway) hdlrAssetURLs(c echo.Context) error {
	r, err := g.record(c)
	if err != nil {
		return toHTTPError(err)
	}

	urls, err := variantURLs(r)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, urls)
}

func (g *Gateway) hdlrAssetVariant(c echo.Context) error {
	r, err := g.record(c)
	if err != nil {
		return toHTTPError(err)
	}

	variant, err := param(c, "variant")
	if err != nil {
		return toHTTPError(err)
	}

	u, err := r.URL(variant)
	if err != nil {
		return toHTTPError(fmt.Errorf("url: %w", err))
	}

	file, err := r.File(variant)
	if err != nil {
		return toHTTPError(fmt.Errorf("file: %w", err))
	}

	return c.JSON(http.StatusOK, variantResponse{URL: u, File: file})
}

func (g *Gateway) hdlrAssetSave(c echo.Context) error {
	defer c.Request().Body.Close()

	r, err := g.record(c)
	if err != nil {
		return toHTTPError(err)
	}

	unlock := g.locks.Lock(r.Namespace() + "/" + r.Key())
	defer unlock()

	if err := r.Save(c.Request().Context(), c.Request().Body); err != nil {
		return toHTTPError(fmt.Errorf("save: %w", err))
	}
	r.SetExisting(r.Key())

	urls, err := variantURLs(r)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusCreated, urls)
}

func (g *Gateway) hdlrAssetDelete(c echo.Context) error {
	r, err := g.record(c)
	if err != nil {
		return toHTTPError(err)
	}

	unlock := g.locks.Lock(r.Namespace() + "/" + r.Key())
	defer unlock()

	if err := r.Delete(c.Request().Context()); err != nil {
		return toHTTPError(fmt.Errorf("delete: %w", err))
	}

	return c.NoContent(http.StatusNoContent)
}

func (g *Gateway) record(c echo.Context) (*asset.Record, error) {
	namespace, err := param(c, "namespace")
	if err != nil {
		return nil, err
	}

	key, err := param(c, "key")
	if err != nil {
		return nil, err
	}

	r, err := g.records(namespace, key)
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}

	return r, nil
}

func variantURLs(r *asset.Record) (map[string]string, error) {
	names := r.Sizes().Names()

	urls := make(map[string]string, len(names))
	for _, name := range names {
		u, err := r.URL(name)
		if err != nil {
			return nil, fmt.Errorf("url %s: %w", name, err)
		}
		urls[name] = u
	}

	return urls, nil
}

// param returns the decoded path parameter. Echo routes on the decoded
// URL.Path unless RawPath is set, only then are parameters still escaped.
func param(c echo.Context, name string) (string, error) {
	v := c.Param(name)
	if c.Request().URL.RawPath == "" {
		return v, nil
	}

	v, err := url.PathUnescape(v)
	if err != nil {
		return "", fmt.Errorf("%w: param %s: %w", entity.ErrInvalidName, name, err)
	}

	return v, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, entity.ErrUnknownVariant):
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	case errors.Is(err, entity.ErrInvalidName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}

	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}
