package native

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Supported subset of ImageMagick geometry: WxH, W, xH with an optional
// trailing flag (^ fill, > shrink only, < enlarge only, ! exact).
var reGeometry = regexp.MustCompile(`^(\d*)(?:x(\d*))?([\^!<>]?)$`)

// MaxDimension bounds both sides of a geometry and of a rendered image.
const MaxDimension = 16384

type geometry struct {
	width  int
	height int
	flag   string
}

func parseGeometry(s string) (geometry, error) {
	m := reGeometry.FindStringSubmatch(s)
	if m == nil {
		return geometry{}, fmt.Errorf("unsupported geometry `%s`", s)
	}

	var g = geometry{flag: m[3]}
	var err error
	if g.width, err = dimension(m[1]); err != nil {
		return geometry{}, fmt.Errorf("geometry `%s` width: %w", s, err)
	}
	if g.height, err = dimension(m[2]); err != nil {
		return geometry{}, fmt.Errorf("geometry `%s` height: %w", s, err)
	}
	if g.width == 0 && g.height == 0 {
		return geometry{}, fmt.Errorf("empty geometry `%s`", s)
	}

	return g, nil
}

func dimension(s string) (int, error) {
	if s == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v > MaxDimension {
		return 0, fmt.Errorf("%d exceeds %d", v, MaxDimension)
	}

	return v, nil
}

// size is the resized dimensions of a sw x sh image.
func (g geometry) size(sw, sh int) (int, int) {
	if g.flag == "!" && g.width > 0 && g.height > 0 {
		return g.width, g.height
	}

	wr := float64(g.width) / float64(sw)
	hr := float64(g.height) / float64(sh)

	var scale float64
	switch {
	case g.width == 0:
		scale = hr
	case g.height == 0:
		scale = wr
	case g.flag == "^":
		scale = math.Max(wr, hr)
	default:
		scale = math.Min(wr, hr)
	}

	switch {
	case g.flag == ">" && scale >= 1:
		return sw, sh
	case g.flag == "<" && scale <= 1:
		return sw, sh
	}

	return max(1, int(math.Round(float64(sw)*scale))), max(1, int(math.Round(float64(sh)*scale)))
}

// canvas is the extent canvas size for an image already resized to w x h.
func (g geometry) canvas(w, h int) (int, int) {
	cw, ch := g.width, g.height
	if cw == 0 {
		cw = w
	}
	if ch == 0 {
		ch = h
	}

	return cw, ch
}
