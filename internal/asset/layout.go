package asset

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sinefunc/imagery/internal/entity"
)

// Layout derives the on-disk location of a record:
//
//	<root>/<directory>/<namespace>/<key>/<variant>.png
//
// Nothing is cached, every call recomputes from the fields.
type Layout struct {
	Root      string
	Directory string
	Namespace string
	Key       string
}

// ResolveRoot returns root, falling back to the IMAGERY_ROOT environment
// variable.
func ResolveRoot(root string) (string, error) {
	if root != "" {
		return root, nil
	}
	if root := os.Getenv(entity.EnvRoot); root != "" {
		return root, nil
	}

	return "", entity.ErrUndefinedRoot
}

func (l Layout) directory() string {
	if l.Directory == "" {
		return entity.DefaultDirectory
	}

	return l.Directory
}

func (l Layout) Dir() (string, error) {
	root, err := ResolveRoot(l.Root)
	if err != nil {
		return "", err
	}

	return filepath.Join(root, l.directory(), l.Namespace, l.Key), nil
}

func (l Layout) VariantPath(variant string) (string, error) {
	dir, err := l.Dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, Filename(variant)), nil
}

// TempPath is the single upload slot of the record.
func (l Layout) TempPath() (string, error) {
	dir, err := l.Dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, entity.NameTemp), nil
}

func (l Layout) URL(variant string) (string, error) {
	root, err := ResolveRoot(l.Root)
	if err != nil {
		return "", err
	}

	p, err := l.VariantPath(variant)
	if err != nil {
		return "", err
	}

	return PublicURL(root, l.directory(), p)
}

// Filename is the file name of a variant. Every variant is stored as PNG
// whatever the source format.
func Filename(variant string) string {
	return variant + entity.ExtVariant
}

func ObjectKey(namespace, key, variant string) string {
	return path.Join(namespace, key, Filename(variant))
}

// WebRoot is <root>/<anchor>, anchor being the first segment of directory
// (`public` for `public/system`). Public URLs are relative to it.
func WebRoot(root, directory string) string {
	directory = strings.Trim(filepath.ToSlash(filepath.Clean(directory)), "/")
	anchor, _, _ := strings.Cut(directory, "/")

	return filepath.Join(root, anchor)
}

// PublicURL strips the web root from variantPath.
func PublicURL(root, directory, variantPath string) (string, error) {
	base := WebRoot(root, directory)
	rel, err := filepath.Rel(base, variantPath)
	if err != nil {
		return "", fmt.Errorf("public url: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("public url: `%s` is outside `%s`", variantPath, base)
	}

	return "/" + filepath.ToSlash(rel), nil
}
