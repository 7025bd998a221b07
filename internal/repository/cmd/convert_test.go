package cmd

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/sinefunc/imagery/internal/entity"
	"github.com/sinefunc/imagery/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	tests := []struct {
		name string
		conv repository.Conversion
		want []string
	}{
		{
			name: "resize",
			conv: repository.Conversion{
				Source: "/r/d/public/system/photo/1001/tmp",
				Target: "/r/d/public/system/photo/1001/thumb.png",
				Resize: "56x56^",
			},
			want: []string{
				"/r/d/public/system/photo/1001/tmp",
				"-thumbnail", "56x56^",
				"-gravity", "center",
				"/r/d/public/system/photo/1001/thumb.png",
			},
		},
		{
			name: "resize with extent",
			conv: repository.Conversion{
				Source: "/r/d/public/system/photo/1001/tmp",
				Target: "/r/d/public/system/photo/1001/small.png",
				Resize: "100x100^",
				Extent: "100x100",
			},
			want: []string{
				"/r/d/public/system/photo/1001/tmp",
				"-thumbnail", "100x100^",
				"-gravity", "center",
				"-extent", "100x100",
				"/r/d/public/system/photo/1001/small.png",
			},
		},
		{
			name: "geometry is a single argument",
			conv: repository.Conversion{
				Source: "/tmp/a b/tmp",
				Target: "/tmp/a b/x.png",
				Resize: "1x1; rm -rf /",
			},
			want: []string{
				"/tmp/a b/tmp",
				"-thumbnail", "1x1; rm -rf /",
				"-gravity", "center",
				"/tmp/a b/x.png",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Args(tt.conv))
		})
	}
}

func fakeTool(t *testing.T, script string) string {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	bin := filepath.Join(t.TempDir(), "convert")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"+script), 0o755))

	return bin
}

func TestCMD_Convert(t *testing.T) {
	dir := t.TempDir()
	conv := repository.Conversion{
		Variant: "thumb",
		Source:  filepath.Join(dir, "tmp"),
		Target:  filepath.Join(dir, "thumb.png"),
		Resize:  "56x56^",
	}

	t.Run("writes target", func(t *testing.T) {
		bin := fakeTool(t, `for a; do last="$a"; done; echo png > "$last"`)

		require.NoError(t, New(Config{Bin: bin}).Convert(context.Background(), conv))
		require.FileExists(t, conv.Target)
		require.NoError(t, os.Remove(conv.Target))
	})

	t.Run("tool failure", func(t *testing.T) {
		bin := fakeTool(t, `for a; do last="$a"; done; echo half > "$last"; echo "bad geometry" >&2; exit 1`)

		err := New(Config{Bin: bin}).Convert(context.Background(), conv)

		var convErr *entity.ConvertError
		require.True(t, errors.As(err, &convErr))
		require.Equal(t, "thumb", convErr.Variant)
		require.Equal(t, "bad geometry", convErr.Stderr)
		require.NoFileExists(t, conv.Target)
	})

	t.Run("no output", func(t *testing.T) {
		bin := fakeTool(t, `exit 0`)

		err := New(Config{Bin: bin}).Convert(context.Background(), conv)

		var convErr *entity.ConvertError
		require.ErrorAs(t, err, &convErr)
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing binary", func(t *testing.T) {
		err := New(Config{Bin: filepath.Join(dir, "nope")}).Convert(context.Background(), conv)

		var convErr *entity.ConvertError
		require.ErrorAs(t, err, &convErr)
	})
}
