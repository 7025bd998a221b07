package asset

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/sinefunc/imagery/internal/entity"
	"github.com/sinefunc/imagery/internal/metrics"
	"github.com/sinefunc/imagery/internal/repository"
	"github.com/sinefunc/imagery/internal/repository/cmd"
	"golang.org/x/sync/errgroup"
)

// Record is the set of image variants attached to one application record.
//
// Save on the same namespace and key shares a single temp file, concurrent
// saves of one record must be serialised by the caller.
type Record struct {
	key            string
	namespace      string
	directory      string
	root           string
	sizes          Sizes
	defaultVariant string
	existing       string

	backend   Backend
	converter repository.Converter
	missing   *MissingPolicy
	workers   int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Config struct {
	Namespace string
	Key       string
	// Directory is relative to Root, public/system by default.
	Directory string
	// Root falls back to the IMAGERY_ROOT environment variable.
	Root           string
	Sizes          map[string]Geometry
	DefaultVariant string
	// Backend defaults to Local.
	Backend Backend
	// Converter defaults to the external convert binary.
	Converter repository.Converter
	// Missing enables placeholder URLs for records without an existing marker.
	Missing *MissingPolicy
	// Workers bounds parallel conversions within one Save, 1 by default.
	Workers int
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// WithBackend returns a copy of c using b.
func (c Config) WithBackend(b Backend) Config {
	c.Backend = b
	return c
}

func New(c Config) (*Record, error) {
	if err := segment("namespace", c.Namespace); err != nil {
		return nil, err
	}
	if err := segment("key", c.Key); err != nil {
		return nil, err
	}

	sizes := NewSizes(c.Sizes)
	if err := sizes.Validate(); err != nil {
		return nil, fmt.Errorf("sizes: %w", err)
	}

	if c.Directory == "" {
		c.Directory = entity.DefaultDirectory
	}
	if c.DefaultVariant == "" {
		c.DefaultVariant = entity.DefaultVariant
	}
	if c.Backend == nil {
		c.Backend = Local{}
	}
	if c.Converter == nil {
		c.Converter = cmd.New(cmd.Config{})
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Record{
		key:            c.Key,
		namespace:      c.Namespace,
		directory:      c.Directory,
		root:           c.Root,
		sizes:          sizes,
		defaultVariant: c.DefaultVariant,
		backend:        c.Backend,
		converter:      c.Converter,
		missing:        c.Missing,
		workers:        c.Workers,
		logger:         c.Logger,
		metrics:        c.Metrics,
	}, nil
}

// For attaches a record to owner. Unless set in c, the key is id formatted
// with fmt.Sprint and the namespace is the lower-cased type name of owner.
func For(owner any, id any, c Config) (*Record, error) {
	if c.Key == "" {
		c.Key = fmt.Sprint(id)
	}
	if c.Namespace == "" {
		c.Namespace = NamespaceOf(owner)
	}

	return New(c)
}

func NamespaceOf(owner any) string {
	t := reflect.TypeOf(owner)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}

	return strings.ToLower(t.Name())
}

func (r *Record) Key() string            { return r.key }
func (r *Record) Namespace() string      { return r.namespace }
func (r *Record) Directory() string      { return r.directory }
func (r *Record) Root() string           { return r.root }
func (r *Record) Sizes() Sizes           { return r.sizes }
func (r *Record) DefaultVariant() string { return r.defaultVariant }
func (r *Record) Existing() string       { return r.existing }
func (r *Record) Backend() Backend       { return r.backend }

func (r *Record) SetRoot(root string) {
	r.root = root
}

func (r *Record) SetSizes(custom map[string]Geometry) error {
	sizes := NewSizes(custom)
	if err := sizes.Validate(); err != nil {
		return fmt.Errorf("sizes: %w", err)
	}

	r.sizes = sizes

	return nil
}

func (r *Record) SetDefaultVariant(variant string) {
	r.defaultVariant = variant
}

// SetExisting marks the record as holding an asset, typically with the
// original file name. An empty marker means missing.
func (r *Record) SetExisting(existing string) {
	r.existing = existing
}

func (r *Record) Layout() Layout {
	return Layout{
		Root:      r.root,
		Directory: r.directory,
		Namespace: r.namespace,
		Key:       r.key,
	}
}

func (r *Record) variant(variant string) (string, error) {
	if variant == "" {
		variant = r.defaultVariant
	}
	if _, err := r.sizes.Resolve(variant); err != nil {
		return "", err
	}

	return variant, nil
}

// File is the absolute path of variant, the default variant when empty.
func (r *Record) File(variant string) (string, error) {
	variant, err := r.variant(variant)
	if err != nil {
		return "", err
	}

	return r.Layout().VariantPath(variant)
}

// URL is the public URL of variant, the default variant when empty.
func (r *Record) URL(variant string) (string, error) {
	variant, err := r.variant(variant)
	if err != nil {
		return "", err
	}

	if r.missing != nil && strings.TrimSpace(r.existing) == "" {
		return r.missing.URL(r.namespace, variant), nil
	}

	return r.backend.URL(r, variant)
}

// Variants lists every configured variant of the record.
func (r *Record) Variants() ([]Variant, error) {
	l := r.Layout()
	names := r.sizes.Names()

	variants := make([]Variant, 0, len(names))
	for _, name := range names {
		p, err := l.VariantPath(name)
		if err != nil {
			return nil, err
		}

		variants = append(variants, Variant{
			Name: name,
			Path: p,
			Key:  ObjectKey(r.namespace, r.key, name),
		})
	}

	return variants, nil
}

// Save writes src to the temp slot, converts it into every variant and hands
// the result to the backend. On a conversion failure the variants written so
// far and the temp file are left in place.
func (r *Record) Save(ctx context.Context, src io.Reader) (err error) {
	if err := r.backend.Check(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if !r.backend.Persists() {
		return nil
	}
	defer func() { r.metrics.Record("save", err) }()

	tmp, err := r.Layout().TempPath()
	if err != nil {
		return fmt.Errorf("temp path: %w", err)
	}

	variants, err := r.Variants()
	if err != nil {
		return fmt.Errorf("variants: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(tmp), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	if err := writeTemp(tmp, src); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}

	if err := r.convert(ctx, tmp, variants); err != nil {
		return fmt.Errorf("convert: %w", err)
	}

	if err := os.Remove(tmp); err != nil {
		return fmt.Errorf("remove temp: %w", err)
	}

	if err := r.backend.AfterSave(ctx, r, variants); err != nil {
		return fmt.Errorf("after save: %w", err)
	}

	r.logger.Debug("record saved",
		slog.String("namespace", r.namespace),
		slog.String("key", r.key),
		slog.Int("variants", len(variants)),
	)

	return nil
}

func writeTemp(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return fmt.Errorf("copy: %w", err)
	}

	return f.Close()
}

func (r *Record) convert(ctx context.Context, tmp string, variants []Variant) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	sizes := r.sizes
	for _, v := range variants {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			geometry, err := sizes.Resolve(v.Name)
			if err != nil {
				return err
			}

			start := time.Now()
			err = r.converter.Convert(ctx, repository.Conversion{
				Variant: v.Name,
				Source:  tmp,
				Target:  v.Path,
				Resize:  geometry.Resize,
				Extent:  geometry.Extent,
			})
			r.metrics.Conversion(v.Name, time.Since(start), err)
			if err != nil {
				return fmt.Errorf("variant %s: %w", v.Name, err)
			}

			return nil
		})
	}

	return g.Wait()
}

// Delete removes the record directory and lets the backend drop its copies.
// Deleting a record that was never saved succeeds.
func (r *Record) Delete(ctx context.Context) (err error) {
	if err := r.backend.Check(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if !r.backend.Persists() {
		return nil
	}
	defer func() { r.metrics.Record("delete", err) }()

	dir, err := r.Layout().Dir()
	if err != nil {
		return fmt.Errorf("dir: %w", err)
	}

	variants, err := r.Variants()
	if err != nil {
		return fmt.Errorf("variants: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove dir: %w", err)
	}

	if err := r.backend.AfterDelete(ctx, r, variants); err != nil {
		return fmt.Errorf("after delete: %w", err)
	}

	r.logger.Debug("record deleted",
		slog.String("namespace", r.namespace),
		slog.String("key", r.key),
	)

	return nil
}
