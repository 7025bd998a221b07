package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sinefunc/imagery/internal/entity"
	"github.com/sinefunc/imagery/internal/repository"
)

const (
	DefaultBin     = "convert"
	DefaultTimeout = time.Minute
)

type CMD struct {
	bin     string
	timeout time.Duration
}

type Config struct {
	// Bin is the ImageMagick entry point, `convert` or `magick`.
	Bin     string
	Timeout time.Duration
}

func New(c Config) *CMD {
	if c.Bin == "" {
		c.Bin = DefaultBin
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	return &CMD{
		bin:     c.Bin,
		timeout: c.Timeout,
	}
}

// Args is the argument vector passed to the binary for c.
//
//	convert <source> -thumbnail <resize> -gravity center [-extent <extent>] <target>
func Args(c repository.Conversion) []string {
	args := []string{
		c.Source,
		"-thumbnail", c.Resize,
		"-gravity", "center",
	}
	if c.Extent != "" {
		args = append(args, "-extent", c.Extent)
	}

	return append(args, c.Target)
}

func (c *CMD) Convert(ctx context.Context, conv repository.Conversion) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stderr, err := cmd(ctx, c.bin, Args(conv)...)
	if err == nil {
		if _, statErr := os.Stat(conv.Target); statErr != nil {
			err = fmt.Errorf("no output: %w", statErr)
		}
	}
	if err != nil {
		if rmErr := os.Remove(conv.Target); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("remove partial output: %w", rmErr))
		}

		return &entity.ConvertError{
			Variant: conv.Variant,
			Tool:    c.bin,
			Stderr:  strings.TrimSpace(stderr),
			Err:     err,
		}
	}

	return nil
}

func cmd(ctx context.Context, prog string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, prog, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stderr.String(), fmt.Errorf("run: %w", err)
	}

	return stderr.String(), nil
}
