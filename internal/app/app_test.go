package app

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sinefunc/imagery/internal/asset"
	"github.com/sinefunc/imagery/internal/entity"
	"github.com/sinefunc/imagery/internal/repository/cmd"
	"github.com/sinefunc/imagery/internal/repository/native"
	"github.com/stretchr/testify/require"
)

func TestNew_backends(t *testing.T) {
	t.Setenv(entity.EnvRoot, "")

	tests := []struct {
		name    string
		backend string
		want    any
	}{
		{name: "local", backend: BackendLocal, want: asset.Local{}},
		{name: "null", backend: BackendNull, want: asset.Null{}},
		{name: "remote", backend: BackendRemote, want: &asset.Remote{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			c.Root = t.TempDir()
			c.Backend = tt.backend

			a, err := New(c, io.Discard)
			require.NoError(t, err)

			r, err := a.Record("photo", "1001")
			require.NoError(t, err)
			require.IsType(t, tt.want, r.Backend())
		})
	}
}

func TestNew_converter(t *testing.T) {
	c := DefaultConfig()
	require.IsType(t, &cmd.CMD{}, newConverter(c))

	c.Converter.Engine = EngineImaging
	require.IsType(t, &native.Native{}, newConverter(c))
}

func TestApp_Record_remoteURL(t *testing.T) {
	c := DefaultConfig()
	c.Backend = BackendRemote
	c.Remote.Bucket = "tmp-bucket-name"

	a, err := New(c, io.Discard)
	require.NoError(t, err)

	r, err := a.Record("supersecretphoto", "1001")
	require.NoError(t, err)

	got, err := r.URL("")
	require.NoError(t, err)
	require.Equal(t, "http://s3.amazonaws.com/tmp-bucket-name/supersecretphoto/1001/original.png", got)

	c.Remote.Provider = ProviderGCS
	a, err = New(c, io.Discard)
	require.NoError(t, err)

	r, err = a.Record("supersecretphoto", "1001")
	require.NoError(t, err)

	got, err = r.URL("")
	require.NoError(t, err)
	require.Equal(t, "https://storage.googleapis.com/tmp-bucket-name/supersecretphoto/1001/original.png", got)
}

func TestApp_Record_missing(t *testing.T) {
	root := t.TempDir()

	c := DefaultConfig()
	c.Root = root
	c.Missing.Enabled = true

	a, err := New(c, io.Discard)
	require.NoError(t, err)

	r, err := a.Record("photo", "1001")
	require.NoError(t, err)

	got, err := r.URL("")
	require.NoError(t, err)
	require.Equal(t, "/missing/photo/original.png", got)

	file := filepath.Join(root, "public/system/photo/1001/original.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("png"), 0o644))

	r, err = a.Record("photo", "1001")
	require.NoError(t, err)

	got, err = r.URL("")
	require.NoError(t, err)
	require.Equal(t, "/system/photo/1001/original.png", got)
}

func TestApp_Record_invalid(t *testing.T) {
	a, err := New(DefaultConfig(), io.Discard)
	require.NoError(t, err)

	_, err = a.Record("photo", "..")
	require.ErrorIs(t, err, entity.ErrInvalidName)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	l, err := NewLogger("warn", LogFormatJSON, &buf)
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger("loud", LogFormatText, &buf)
	require.Error(t, err)

	_, err = NewLogger("info", "xml", &buf)
	require.Error(t, err)
}
