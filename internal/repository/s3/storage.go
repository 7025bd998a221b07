package s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sinefunc/imagery/internal/entity"
	"github.com/sinefunc/imagery/internal/repository"
)

const (
	DefaultHost    = entity.DefaultRemoteHost
	DefaultRegion  = "us-east-1"
	DefaultTimeout = 30 * time.Second

	EnvAccessKey    = "AMAZON_ACCESS_KEY_ID"
	EnvAccessSecret = "AMAZON_SECRET_ACCESS_KEY"
)

type client interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
	DeleteObjectWithContext(ctx aws.Context, input *s3.DeleteObjectInput, opts ...request.Option) (*s3.DeleteObjectOutput, error)
}

type Storage struct {
	mu      sync.Mutex
	client  client
	dial    func() (client, error)
	host    string
	timeout time.Duration
}

type StorageConfig struct {
	Endpoint string
	Region   string
	// Host is the public host used to build object URLs.
	Host    string
	Timeout time.Duration
	// Getenv reads credentials at connect time, os.Getenv when nil.
	Getenv func(string) string
}

func New(c StorageConfig) *Storage {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Getenv == nil {
		c.Getenv = os.Getenv
	}

	return &Storage{
		dial:    func() (client, error) { return dial(c) },
		host:    c.Host,
		timeout: c.Timeout,
	}
}

func dial(c StorageConfig) (client, error) {
	config := aws.NewConfig().WithRegion(c.Region)
	if c.Endpoint != "" {
		config = config.WithEndpoint(c.Endpoint).WithS3ForcePathStyle(true)
	}
	if key, secret := c.Getenv(EnvAccessKey), c.Getenv(EnvAccessSecret); key != "" || secret != "" {
		config = config.WithCredentials(credentials.NewStaticCredentials(key, secret, ""))
	}

	s, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("s3 session: %w", err)
	}

	return s3.New(s), nil
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

		input := &s3.PutObjectInput{
			Body:   object.Content,
			Bucket: aws.String(bucket),
			Key:    aws.String(object.Path),
		}
		if object.Access != "" {
			input.ACL = aws.String(object.Access)
		}
		if object.ContentType != "" {
			input.ContentType = aws.String(object.ContentType)
		}

		return s.do(func(c client) error {
			_, err := c.PutObjectWithContext(ctx, input)
			return err
		})
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
		return s.do(func(c client) error {
			_, err := c.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(path),
			})
			return err
		})
	})
	if err != nil {
		return &entity.TransportError{Op: "delete", Bucket: bucket, Key: path, Err: err}
	}

	return nil
}

func (s *Storage) connect(context.Context) error {
	c, err := s.dial()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.client = c
	s.mu.Unlock()

	return nil
}

// do runs fn on the current client. A missing client or a network level
// request failure is reported as entity.ErrNotConnected.
func (s *Storage) do(fn func(c client) error) error {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()

	if c == nil {
		return entity.ErrNotConnected
	}

	err := fn(c)

	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == request.ErrCodeRequestError {
		s.mu.Lock()
		if s.client == c {
			s.client = nil
		}
		s.mu.Unlock()

		return fmt.Errorf("%w: %w", entity.ErrNotConnected, err)
	}

	return err
}
