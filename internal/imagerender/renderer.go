package imagerender

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfvalidator/internal/verdict"
)

// OpenOptions configures how a document is opened.
type OpenOptions struct {
	Password string
}

// Renderer opens PDF bytes into a Document.
type Renderer interface {
	Open(ctx context.Context, data []byte, opts OpenOptions) (Document, error)
}

// Document is an opened PDF. It is owned by a single classification request
// and must be closed exactly once; Close is safe to call again.
type Document interface {
	PageCount() int
	// RenderPage rasterizes one page. Indices outside 1..PageCount panic.
	RenderPage(ctx context.Context, page PageDescriptor) (*Raster, error)
	Close() error
}

// FitzRenderer renders through MuPDF (go-fitz). No external tools needed.
type FitzRenderer struct{}

// NewFitzRenderer creates a go-fitz backed renderer.
func NewFitzRenderer() *FitzRenderer { return &FitzRenderer{} }

// Open decodes data, decrypting it first when a password is supplied.
func (FitzRenderer) Open(ctx context.Context, data []byte, opts OpenOptions) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, verdict.FromContext(err)
	}
	if len(data) == 0 {
		return nil, &verdict.DecodeError{Reason: "empty input"}
	}
	plain := data
	if opts.Password != "" {
		var err error
		if plain, err = Decrypt(data, opts.Password); err != nil {
			return nil, err
		}
	}

	doc, err := fitz.NewFromMemory(plain)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, &verdict.DecodeError{Reason: "document is encrypted", Err: err}
		}
		return nil, &verdict.DecodeError{Reason: "cannot open document", Err: err}
	}
	n := doc.NumPage()
	if n <= 0 {
		_ = doc.Close()
		return nil, &verdict.DecodeError{Reason: "document has no pages"}
	}
	log.Debug().Int("pages", n).Int("bytes", len(data)).Msg("opened pdf with go-fitz")
	return &fitzDocument{doc: doc, pages: n}, nil
}

type fitzDocument struct {
	mu     sync.Mutex
	doc    *fitz.Document
	pages  int
	closed bool
}

func (d *fitzDocument) PageCount() int { return d.pages }

func (d *fitzDocument) RenderPage(ctx context.Context, page PageDescriptor) (*Raster, error) {
	if page.Index < 1 || page.Index > d.pages {
		panic(fmt.Sprintf("imagerender: page %d out of range 1..%d", page.Index, d.pages))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, &verdict.RenderError{Page: page.Index, Err: errors.New("document closed")}
	}
	// go-fitz loads, renders and drops the page and its pixmap inside ImageDPI,
	// so nothing page-scoped survives this call except the returned image.
	img, err := d.doc.ImageDPI(page.Index-1, page.DPI())
	if err != nil {
		return nil, &verdict.RenderError{Page: page.Index, Err: err}
	}
	r := FromRGBA(img)
	log.Debug().
		Int("page", page.Index).
		Int("width", r.Width).
		Int("height", r.Height).
		Float64("dpi", page.DPI()).
		Msg("rendered page")
	return r, nil
}

func (d *fitzDocument) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.doc == nil {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}
