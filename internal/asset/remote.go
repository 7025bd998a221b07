package asset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sinefunc/imagery/internal/entity"
	"github.com/sinefunc/imagery/internal/metrics"
	"github.com/sinefunc/imagery/internal/repository"
)

// Remote mirrors every saved variant to an object store.
type Remote struct {
	store   repository.ObjectStore
	bucket  string
	domain  string
	host    string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type RemoteConfig struct {
	Store  repository.ObjectStore
	Bucket string
	// DistributionDomain, when set, replaces <host>/<bucket> in URLs.
	DistributionDomain string
	// Host overrides the store's default host in URLs.
	Host    string
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func NewRemote(c RemoteConfig) *Remote {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return &Remote{
		store:   c.Store,
		bucket:  c.Bucket,
		domain:  strings.TrimRight(c.DistributionDomain, "/"),
		host:    strings.TrimRight(c.Host, "/"),
		logger:  c.Logger,
		metrics: c.Metrics,
	}
}

func (b *Remote) Bucket() (string, error) {
	if b.bucket == "" {
		return "", fmt.Errorf("%w%s", entity.ErrUndefinedBucket, entity.BucketHelp)
	}

	return b.bucket, nil
}

func (b *Remote) Check() error {
	if _, err := b.Bucket(); err != nil {
		return err
	}
	if b.store == nil {
		return fmt.Errorf("remote backend without object store")
	}

	return nil
}

func (b *Remote) Persists() bool { return true }

func (b *Remote) AfterSave(ctx context.Context, r *Record, variants []Variant) error {
	bucket, err := b.Bucket()
	if err != nil {
		return err
	}

	for _, v := range variants {
		err := b.upload(ctx, bucket, v)
		b.metrics.Remote("store", err)
		if err != nil {
			return fmt.Errorf("upload %s: %w", v.Name, err)
		}

		b.logger.Debug("variant uploaded",
			slog.String("bucket", bucket),
			slog.String("key", v.Key),
		)
	}

	return nil
}

func (b *Remote) upload(ctx context.Context, bucket string, v Variant) error {
	f, err := os.Open(v.Path)
	if err != nil {
		return fmt.Errorf("open variant: %w", err)
	}
	defer f.Close()

	return b.store.Store(ctx, repository.ObjectReader{
		Path:        v.Key,
		ContentType: entity.ContentTypePNG,
		Access:      entity.AccessPublicRead,
		Content:     f,
	}, bucket)
}

func (b *Remote) AfterDelete(ctx context.Context, r *Record, variants []Variant) error {
	bucket, err := b.Bucket()
	if err != nil {
		return err
	}

	for _, v := range variants {
		err := b.store.Delete(ctx, v.Key, bucket)
		b.metrics.Remote("delete", err)
		if err != nil {
			return fmt.Errorf("delete %s: %w", v.Name, err)
		}
	}

	return nil
}

func (b *Remote) URL(r *Record, variant string) (string, error) {
	bucket, err := b.Bucket()
	if err != nil {
		return "", err
	}

	key := ObjectKey(r.Namespace(), r.Key(), variant)
	if b.domain != "" {
		return b.domain + "/" + key, nil
	}

	return b.Host() + "/" + bucket + "/" + key, nil
}

func (b *Remote) Host() string {
	switch {
	case b.host != "":
		return b.host
	case b.store != nil:
		return strings.TrimRight(b.store.DefaultHost(), "/")
	default:
		return entity.DefaultRemoteHost
	}
}
