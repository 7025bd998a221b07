package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/sinefunc/imagery/internal/entity"
	"github.com/sinefunc/imagery/internal/repository"
	"google.golang.org/api/option"
)

const (
	DefaultHost    = "https://storage.googleapis.com"
	DefaultTimeout = 2 * time.Minute
)

var predefinedACL = map[string]string{
	entity.AccessPublicRead: "publicRead",
	"private":               "private",
}

type client interface {
	put(ctx context.Context, bucket string, object repository.ObjectReader) error
	remove(ctx context.Context, bucket, key string) error
}

type Storage struct {
	mu      sync.Mutex
	client  client
	dial    func(ctx context.Context) (client, error)
	host    string
	timeout time.Duration
}

type StorageConfig struct {
	// CredentialsFile is optional, application default credentials are used
	// when empty.
	CredentialsFile string
	Host            string
	Timeout         time.Duration
}

func New(c StorageConfig) *Storage {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	return &Storage{
		dial:    func(ctx context.Context) (client, error) { return dial(ctx, c) },
		host:    c.Host,
		timeout: c.Timeout,
	}
}

func dial(ctx context.Context, c StorageConfig) (client, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if c.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}

	// The client outlives the call that happened to create it.
	st, err := storage.NewClient(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}

	return &gcsClient{st: st}, nil
}

func (s *Storage) DefaultHost() string {
	return s.host
}

func (s *Storage) Store(ctx context.Context, object repository.ObjectReader, bucket string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var attempt int
	err := repository.Reconnect(ctx, s.connect, func(ctx context.Context) error {
		if attempt++; attempt > 1 {
			if err := repository.Rewind(object.Content); err != nil {
				return err
			}
		}

		c := s.current()
		if c == nil {
			return entity.ErrNotConnected
		}

		return c.put(ctx, bucket, object)
	})
	if err != nil {
		return &entity.TransportError{Op: "store", Bucket: bucket, Key: object.Path, Err: err}
	}

	return nil
}

func (s *Storage) Delete(ctx context.Context, path, bucket string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := repository.Reconnect(ctx, s.connect, func(ctx context.Context) error {
		c := s.current()
		if c == nil {
			return entity.ErrNotConnected
		}

		return c.remove(ctx, bucket, path)
	})
	if err != nil {
		return &entity.TransportError{Op: "delete", Bucket: bucket, Key: path, Err: err}
	}

	return nil
}

func (s *Storage) current() client {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.client
}

func (s *Storage) connect(ctx context.Context) error {
	c, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.client = c
	s.mu.Unlock()

	return nil
}

type gcsClient struct {
	st *storage.Client
}

func (g *gcsClient) put(ctx context.Context, bucket string, object repository.ObjectReader) error {
	w := g.st.Bucket(bucket).Object(object.Path).NewWriter(ctx)
	w.ContentType = object.ContentType
	if acl, ok := predefinedACL[object.Access]; ok {
		w.PredefinedACL = acl
	}

	if _, err := io.Copy(w, object.Content); err != nil {
		_ = w.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}

	return nil
}

func (g *gcsClient) remove(ctx context.Context, bucket, key string) error {
	if err := g.st.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}

		return fmt.Errorf("delete: %w", err)
	}

	return nil
}
