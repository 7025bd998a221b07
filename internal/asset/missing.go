package asset

import (
	"path"
	"strings"

	"github.com/sinefunc/imagery/internal/entity"
)

// MissingPolicy serves a placeholder URL for records whose existing marker is
// empty.
type MissingPolicy struct {
	// Prefix defaults to /missing.
	Prefix string
}

func (p MissingPolicy) URL(namespace, variant string) string {
	prefix := strings.TrimRight(p.Prefix, "/")
	if prefix == "" {
		prefix = entity.MissingPrefix
	}

	return prefix + "/" + path.Join(namespace, Filename(variant))
}
