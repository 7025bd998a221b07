package native

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/disintegration/imaging"
	"github.com/sinefunc/imagery/internal/entity"
	"github.com/sinefunc/imagery/internal/repository"
)

const tool = "imaging"

// Native converts in process, without an external binary.
type Native struct {
	filter imaging.ResampleFilter
}

func New() *Native {
	return &Native{
		filter: imaging.Lanczos,
	}
}

func (n *Native) Convert(ctx context.Context, c repository.Conversion) error {
	if err := n.convert(ctx, c); err != nil {
		return &entity.ConvertError{
			Variant: c.Variant,
			Tool:    tool,
			Err:     err,
		}
	}

	return nil
}

func (n *Native) convert(ctx context.Context, c repository.Conversion) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := imaging.Open(c.Source, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}

	dst, err := n.Render(src, c.Resize, c.Extent)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	part := c.Target + ".part"
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	defer os.Remove(part)

	if err := imaging.Encode(f, dst, imaging.PNG); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close target: %w", err)
	}

	if err := os.Rename(part, c.Target); err != nil {
		return fmt.Errorf("rename target: %w", err)
	}

	return nil
}

// Render resizes src to fit resize, then centres it on an extent canvas when
// extent is set.
func (n *Native) Render(src image.Image, resize, extent string) (*image.NRGBA, error) {
	g, err := parseGeometry(resize)
	if err != nil {
		return nil, fmt.Errorf("resize: %w", err)
	}

	b := src.Bounds()
	w, h := g.size(b.Dx(), b.Dy())
	if w > MaxDimension || h > MaxDimension {
		return nil, fmt.Errorf("resize: %dx%d exceeds %d", w, h, MaxDimension)
	}
	dst := imaging.Resize(src, w, h, n.filter)

	if extent == "" {
		return dst, nil
	}

	e, err := parseGeometry(extent)
	if err != nil {
		return nil, fmt.Errorf("extent: %w", err)
	}

	cw, ch := e.canvas(w, h)
	canvas := imaging.New(cw, ch, color.NRGBA{})

	return imaging.PasteCenter(canvas, dst), nil
}
