package repository

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sinefunc/imagery/internal/entity"
)

// Reconnect runs op and, if it fails with entity.ErrNotConnected, connects and
// runs op exactly once more. Any other failure is returned as is.
func Reconnect(ctx context.Context, connect func(ctx context.Context) error, op func(ctx context.Context) error) error {
	err := op(ctx)
	if !errors.Is(err, entity.ErrNotConnected) {
		return err
	}

	if err := connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	return op(ctx)
}

// Rewind seeks content back to its start before a repeated upload.
func Rewind(content io.Seeker) error {
	if content == nil {
		return nil
	}

	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind: %w", err)
	}

	return nil
}
