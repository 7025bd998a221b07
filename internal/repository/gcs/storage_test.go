package gcs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sinefunc/imagery/internal/entity"
	"github.com/sinefunc/imagery/internal/repository"
	"github.com/stretchr/testify/require"
)

type stored struct {
	bucket string
	object repository.ObjectReader
	body   string
}

type fakeClient struct {
	stored  []stored
	removed []string
	err     error
}

func (f *fakeClient) put(_ context.Context, bucket string, object repository.ObjectReader) error {
	body, _ := io.ReadAll(object.Content)
	f.stored = append(f.stored, stored{bucket: bucket, object: object, body: string(body)})
	return f.err
}

func (f *fakeClient) remove(_ context.Context, bucket, key string) error {
	f.removed = append(f.removed, bucket+"/"+key)
	return f.err
}

func TestStorage(t *testing.T) {
	f := &fakeClient{}
	var dials int
	s := New(StorageConfig{})
	s.dial = func(context.Context) (client, error) {
		dials++
		return f, nil
	}

	require.Equal(t, "https://storage.googleapis.com", s.DefaultHost())

	err := s.Store(context.Background(), repository.ObjectReader{
		Path:        "photo/1001/original.png",
		ContentType: entity.ContentTypePNG,
		Access:      entity.AccessPublicRead,
		Content:     strings.NewReader("png"),
	}, "bucket")
	require.NoError(t, err)
	require.NoError(t, s.Delete(context.Background(), "photo/1001/original.png", "bucket"))

	require.Equal(t, 1, dials)
	require.Len(t, f.stored, 1)
	require.Equal(t, "bucket", f.stored[0].bucket)
	require.Equal(t, "png", f.stored[0].body)
	require.Equal(t, []string{"bucket/photo/1001/original.png"}, f.removed)
}

func TestStorage_errors(t *testing.T) {
	t.Run("dial failure", func(t *testing.T) {
		errDial := errors.New("no credentials")
		s := New(StorageConfig{})
		s.dial = func(context.Context) (client, error) { return nil, errDial }

		err := s.Delete(context.Background(), "k", "b")

		var transportErr *entity.TransportError
		require.ErrorAs(t, err, &transportErr)
		require.ErrorIs(t, err, errDial)
	})

	t.Run("operation failure is not retried", func(t *testing.T) {
		f := &fakeClient{err: errors.New("forbidden")}
		s := New(StorageConfig{})
		s.dial = func(context.Context) (client, error) { return f, nil }

		err := s.Store(context.Background(), repository.ObjectReader{Path: "k", Content: strings.NewReader("x")}, "b")

		var transportErr *entity.TransportError
		require.ErrorAs(t, err, &transportErr)
		require.Equal(t, "store", transportErr.Op)
		require.Len(t, f.stored, 1)
	})
}
