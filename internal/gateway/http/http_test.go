package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sinefunc/imagery/internal/asset"
	"github.com/sinefunc/imagery/internal/entity"
	"github.com/sinefunc/imagery/internal/metrics"
	"github.com/sinefunc/imagery/internal/repository"
	"github.com/stretchr/testify/require"
)

// copyConverter copies the upload into every variant.
type copyConverter struct{}

func (copyConverter) Convert(_ context.Context, c repository.Conversion) error {
	data, err := os.ReadFile(c.Source)
	if err != nil {
		return err
	}

	return os.WriteFile(c.Target, data, 0o644)
}

func newTestGateway(t *testing.T) (*Gateway, string) {
	t.Helper()

	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)

	g := New(GatewayConfig{
		Records: func(namespace, key string) (*asset.Record, error) {
			return asset.New(asset.Config{
				Namespace: namespace,
				Key:       key,
				Root:      root,
				Sizes:     map[string]asset.Geometry{"thumb": {Resize: "10x10"}},
				Converter: copyConverter{},
				Logger:    logger,
				Metrics:   m,
			})
		},
		Static:  asset.WebRoot(root, entity.DefaultDirectory),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:  logger,
	})

	return g, root
}

func serve(g *Gateway, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	return rec
}

func TestGateway_assets(t *testing.T) {
	g, root := newTestGateway(t)

	rec := serve(g, http.MethodPost, "/assets/photo/1001", strings.NewReader("raw image"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var urls map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &urls))
	require.Equal(t, map[string]string{
		"original": "/system/photo/1001/original.png",
		"thumb":    "/system/photo/1001/thumb.png",
	}, urls)
	require.FileExists(t, root+"/public/system/photo/1001/thumb.png")

	rec = serve(g, http.MethodGet, "/assets/photo/1001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"original":"/system/photo/1001/original.png","thumb":"/system/photo/1001/thumb.png"}`, rec.Body.String())

	rec = serve(g, http.MethodGet, "/assets/photo/1001/thumb", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var variant variantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &variant))
	require.Equal(t, variantResponse{
		URL:  "/system/photo/1001/thumb.png",
		File: root + "/public/system/photo/1001/thumb.png",
	}, variant)

	rec = serve(g, http.MethodGet, "/system/photo/1001/thumb.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "raw image", rec.Body.String())

	rec = serve(g, http.MethodDelete, "/assets/photo/1001", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NoFileExists(t, root+"/public/system/photo/1001/thumb.png")

	rec = serve(g, http.MethodGet, "/system/photo/1001/thumb.png", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(g, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `imagery_record_operations_total{op="save",result="ok"} 1`)
	require.Contains(t, rec.Body.String(), `imagery_record_operations_total{op="delete",result="ok"} 1`)
	require.Contains(t, rec.Body.String(), `imagery_conversions_total{result="ok",variant="thumb"} 1`)
	require.NotContains(t, rec.Body.String(), `namespace=`)
	require.Zero(t, g.locks.len())
}

func TestGateway_errors(t *testing.T) {
	g, _ := newTestGateway(t)

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{name: "unknown variant", method: http.MethodGet, target: "/assets/photo/1001/foo", want: http.StatusNotFound},
		{name: "invalid key", method: http.MethodPost, target: "/assets/photo/..", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(g, tt.method, tt.target, strings.NewReader("raw"))
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestGateway_escapedKeys(t *testing.T) {
	g, root := newTestGateway(t)

	tests := []struct {
		name   string
		target string
		key    string
	}{
		{name: "escaped percent before hex digits", target: "/assets/photo/a%2541", key: "a%41"},
		{name: "trailing percent", target: "/assets/photo/100%25", key: "100%"},
		{name: "escaped space", target: "/assets/photo/my%20photo", key: "my photo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(g, http.MethodPost, tt.target, strings.NewReader("raw image"))
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			require.FileExists(t, root+"/public/system/photo/"+tt.key+"/thumb.png")

			rec = serve(g, http.MethodGet, tt.target+"/thumb", nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var variant variantResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &variant))
			require.Equal(t, "/system/photo/"+tt.key+"/thumb.png", variant.URL)
			require.Equal(t, root+"/public/system/photo/"+tt.key+"/thumb.png", variant.File)

			rec = serve(g, http.MethodDelete, tt.target, nil)
			require.Equal(t, http.StatusNoContent, rec.Code)
			require.NoDirExists(t, root+"/public/system/photo/"+tt.key)
		})
	}

	// A decoded record must not be reachable through its double-escaped key.
	require.NoDirExists(t, root+"/public/system/photo/aA")

	// An escaped slash decodes into the key and is rejected.
	rec := serve(g, http.MethodPost, "/assets/photo/a%2Fb", strings.NewReader("raw"))
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("url: %w", entity.ErrUnknownVariant), want: http.StatusNotFound},
		{err: fmt.Errorf("record: %w", entity.ErrInvalidName), want: http.StatusBadRequest},
		{err: fmt.Errorf("save: %w", entity.ErrUndefinedBucket), want: http.StatusInternalServerError},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			var he *echo.HTTPError
			require.ErrorAs(t, toHTTPError(tt.err), &he)
			require.Equal(t, tt.want, he.Code)
			require.ErrorIs(t, he, tt.err)
		})
	}
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock := k.Lock("photo/1001")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
	require.Zero(t, k.len())
}
