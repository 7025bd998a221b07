package asset

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/sinefunc/imagery/internal/entity"
)

// Geometry describes one variant: an ImageMagick style resize geometry and an
// optional fixed canvas applied after the resize.
type Geometry struct {
	Resize string `yaml:"resize"`
	Extent string `yaml:"extent,omitempty"`
}

// UnmarshalYAML accepts a mapping, a single geometry string or a
// [resize, extent] sequence.
func (g *Geometry) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var list []string
	if err := unmarshal(&list); err == nil {
		switch len(list) {
		case 1:
			*g = Geometry{Resize: list[0]}
		case 2:
			*g = Geometry{Resize: list[0], Extent: list[1]}
		default:
			return fmt.Errorf("geometry wants 1 or 2 values, got %d", len(list))
		}
		return nil
	}

	var s string
	if err := unmarshal(&s); err == nil {
		*g = Geometry{Resize: s}
		return nil
	}

	type plain Geometry
	var p plain
	if err := unmarshal(&p); err != nil {
		return err
	}
	*g = Geometry(p)

	return nil
}

var defaultSizes = map[string]Geometry{
	entity.DefaultVariant: {Resize: entity.DefaultResize},
}

// Sizes is the merged variant table. The zero value holds only the default
// `original` variant.
type Sizes struct {
	table map[string]Geometry
}

// NewSizes overlays custom onto the default table, a custom `original` entry
// replaces the default one.
func NewSizes(custom map[string]Geometry) Sizes {
	table := make(map[string]Geometry, len(custom)+len(defaultSizes))
	maps.Copy(table, defaultSizes)
	maps.Copy(table, custom)

	return Sizes{table: table}
}

func (s Sizes) entries() map[string]Geometry {
	if s.table == nil {
		return defaultSizes
	}

	return s.table
}

func (s Sizes) Resolve(name string) (Geometry, error) {
	g, ok := s.entries()[name]
	if !ok {
		return Geometry{}, fmt.Errorf("%w: `%s` is not defined", entity.ErrUnknownVariant, name)
	}

	return g, nil
}

func (s Sizes) Has(name string) bool {
	_, ok := s.entries()[name]
	return ok
}

// Names lists every variant, sorted.
func (s Sizes) Names() []string {
	return slices.Sorted(maps.Keys(s.entries()))
}

// Map returns a copy of the merged table.
func (s Sizes) Map() map[string]Geometry {
	return maps.Clone(s.entries())
}

// Validate rejects variant names that cannot be used as a file name and
// entries without a resize geometry.
func (s Sizes) Validate() error {
	for name, g := range s.entries() {
		if err := segment("variant", name); err != nil {
			return err
		}
		if strings.TrimSpace(g.Resize) == "" {
			return fmt.Errorf("variant `%s`: empty resize geometry", name)
		}
	}

	return nil
}

func segment(what, v string) error {
	switch {
	case v == "":
		return fmt.Errorf("%w: empty %s", entity.ErrInvalidName, what)
	case v == "." || v == "..", strings.ContainsAny(v, `/\`), strings.ContainsRune(v, 0):
		return fmt.Errorf("%w: %s `%s`", entity.ErrInvalidName, what, v)
	}

	return nil
}
