package repository

import (
	"context"
	"io"
)

// ObjectReader is one object to upload. Content is rewound before a retry.
type ObjectReader struct {
	Path        string
	ContentType string
	Access      string
	Content     io.ReadSeeker
}

// ObjectStore is the remote mirror of saved variants.
type ObjectStore interface {
	Store(ctx context.Context, object ObjectReader, bucket string) error
	Delete(ctx context.Context, path, bucket string) error
	DefaultHost() string
}

type Conversion struct {
	Variant string
	Source  string
	Target  string
	Resize  string
	Extent  string
}

// Converter writes one resized variant of Source to Target.
type Converter interface {
	Convert(ctx context.Context, c Conversion) error
}
