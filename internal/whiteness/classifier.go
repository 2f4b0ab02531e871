// Package whiteness decides whether a rendered page carries visual content.
//
// Two rules exist and a deployment uses exactly one of them:
//
//   - Strict: a pixel is white iff every color channel is 255 and, when the
//     raster has alpha, alpha is 255 too. A page is blank iff every sampled
//     pixel is white. Pixels that are not fully opaque are never white.
//   - Relaxed: a pixel carries content iff the largest pairwise channel
//     difference exceeds Tolerance. Fully transparent pixels carry no color and
//     are skipped. Only chromatic content is detected, which suits lossy
//     sources where exact 255 equality does not survive compression.
package whiteness

import (
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"

	"github.com/local/pdfvalidator/internal/imagerender"
	"github.com/local/pdfvalidator/internal/verdict"
)

// Mode selects the whiteness rule.
type Mode string

const (
	Strict  Mode = "strict"
	Relaxed Mode = "relaxed"
)

// DefaultTolerance is the relaxed-mode channel difference threshold.
const DefaultTolerance = 30

// ParseMode accepts "strict" or "relaxed" (case-insensitive). Empty means strict.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Strict:
		return Strict, nil
	case Relaxed:
		return Relaxed, nil
	default:
		return "", fmt.Errorf("unknown whiteness mode %q", s)
	}
}

// Options tunes the classifier.
type Options struct {
	Mode      Mode
	Tolerance int
	// Stride samples every Stride-th pixel along both axes. <= 1 samples all.
	Stride int
	// ThumbnailMax, when > 0, downsamples the raster to fit ThumbnailMax x
	// ThumbnailMax before sampling.
	ThumbnailMax int
}

// Classifier applies one whiteness rule to rasters.
type Classifier struct {
	opts Options
}

// New builds a classifier, filling defaults.
func New(opts Options) *Classifier {
	if opts.Mode == "" {
		opts.Mode = Strict
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Stride < 1 {
		opts.Stride = 1
	}
	return &Classifier{opts: opts}
}

// Mode returns the active rule.
func (c *Classifier) Mode() Mode { return c.opts.Mode }

// Options returns the effective options.
func (c *Classifier) Options() Options { return c.opts }

// Classify inspects r and returns Blank or HasContent. r is not modified.
func (c *Classifier) Classify(r *imagerender.Raster) verdict.PageVerdict {
	if r == nil || r.Width == 0 || r.Height == 0 {
		return verdict.Blank
	}
	if c.opts.ThumbnailMax > 0 && (r.Width > c.opts.ThumbnailMax || r.Height > c.opts.ThumbnailMax) {
		small := thumbnail(r, c.opts.ThumbnailMax)
		defer small.Release()
		r = small
	}

	pixelHasContent := c.strictContent
	if c.opts.Mode == Relaxed {
		alpha := r.HasAlpha()
		pixelHasContent = func(p []byte) bool { return c.relaxedContent(p, alpha) }
	}
	step := c.opts.Stride
	for y := 0; y < r.Height; y += step {
		for x := 0; x < r.Width; x += step {
			if pixelHasContent(r.Pixel(x, y)) {
				return verdict.HasContent
			}
		}
	}
	return verdict.Blank
}

func (c *Classifier) strictContent(p []byte) bool {
	for _, v := range p {
		if v != 0xff {
			return true
		}
	}
	return false
}

func (c *Classifier) relaxedContent(p []byte, alpha bool) bool {
	if alpha && p[3] == 0 {
		return false
	}
	r, g, b := int(p[0]), int(p[1]), int(p[2])
	d := abs(r - g)
	if v := abs(g - b); v > d {
		d = v
	}
	if v := abs(r - b); v > d {
		d = v
	}
	return d > c.opts.Tolerance
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// thumbnail scales r to fit inside max x max, keeping the aspect ratio.
func thumbnail(r *imagerender.Raster, max int) *imagerender.Raster {
	w, h := r.Width, r.Height
	if w >= h {
		h = h * max / w
		w = max
	} else {
		w = w * max / h
		h = max
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), r.RGBA(), image.Rect(0, 0, r.Width, r.Height), draw.Src, nil)
	return imagerender.FromRGBA(dst)
}
