// Package rendertest provides an in-memory Renderer for tests. Documents are
// described as a list of pages; each page is a function producing its raster.
package rendertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/local/pdfvalidator/internal/imagerender"
	"github.com/local/pdfvalidator/internal/verdict"
)

// PageFunc builds the raster for one page.
type PageFunc func() (*imagerender.Raster, error)

// Solid returns a page filled with a single RGBA color.
func Solid(w, h int, r, g, b, a byte) PageFunc {
	return func() (*imagerender.Raster, error) { return SolidRaster(w, h, r, g, b, a), nil }
}

// White returns an opaque all-white page.
func White(w, h int) PageFunc { return Solid(w, h, 0xff, 0xff, 0xff, 0xff) }

// WithPixel returns an opaque white page with one pixel set to (r, g, b).
func WithPixel(w, h, x, y int, r, g, b byte) PageFunc {
	return func() (*imagerender.Raster, error) {
		rs := SolidRaster(w, h, 0xff, 0xff, 0xff, 0xff)
		p := rs.Pixel(x, y)
		p[0], p[1], p[2] = r, g, b
		return rs, nil
	}
}

// Failing returns a page that cannot be rendered.
func Failing(msg string) PageFunc {
	return func() (*imagerender.Raster, error) { return nil, errors.New(msg) }
}

// SolidRaster allocates a 4-channel raster filled with one color.
func SolidRaster(w, h int, r, g, b, a byte) *imagerender.Raster {
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, a
	}
	return &imagerender.Raster{Width: w, Height: h, Channels: 4, Stride: w * 4, Pix: pix}
}

// Renderer hands out Documents built from Pages. It counts opens, renders and
// closes so tests can check early exit and cleanup.
type Renderer struct {
	Pages   []PageFunc
	OpenErr error

	mu      sync.Mutex
	opens   int
	renders []int
	closes  int
	open    int
}

// Open ignores data; the document content comes from r.Pages.
func (r *Renderer) Open(ctx context.Context, data []byte, opts imagerender.OpenOptions) (imagerender.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opens++
	if r.OpenErr != nil {
		return nil, r.OpenErr
	}
	if len(r.Pages) == 0 {
		return nil, &verdict.DecodeError{Reason: "document has no pages"}
	}
	r.open++
	return &document{r: r}, nil
}

// Renders returns the 1-based indices rendered so far, in order.
func (r *Renderer) Renders() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.renders...)
}

// Opens is the number of Open calls.
func (r *Renderer) Opens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

// Closes is the number of documents closed (repeat closes are not counted).
func (r *Renderer) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

// OpenDocuments is the number of documents opened and not yet closed.
func (r *Renderer) OpenDocuments() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

type document struct {
	r      *Renderer
	closed bool
}

func (d *document) PageCount() int { return len(d.r.Pages) }

func (d *document) RenderPage(ctx context.Context, page imagerender.PageDescriptor) (*imagerender.Raster, error) {
	if page.Index < 1 || page.Index > len(d.r.Pages) {
		panic(fmt.Sprintf("rendertest: page %d out of range 1..%d", page.Index, len(d.r.Pages)))
	}
	d.r.mu.Lock()
	d.r.renders = append(d.r.renders, page.Index)
	fn := d.r.Pages[page.Index-1]
	d.r.mu.Unlock()
	if d.closed {
		return nil, &verdict.RenderError{Page: page.Index, Err: errors.New("document closed")}
	}
	rs, err := fn()
	if err != nil {
		return nil, &verdict.RenderError{Page: page.Index, Err: err}
	}
	return rs, nil
}

func (d *document) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.r.mu.Lock()
	d.r.closes++
	d.r.open--
	d.r.mu.Unlock()
	return nil
}
