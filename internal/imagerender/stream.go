package imagerender

import (
	"context"
	"io"
)

// PageStream yields rendered pages in increasing index order starting at 1.
// It is single-pass and cannot be restarted. Closing the stream does not close
// the underlying Document; the caller that opened it owns that.
type PageStream struct {
	doc      Document
	scale    float64
	next     int
	rendered int
	closed   bool
}

// NewPageStream creates a stream over doc rendering every page at scale.
func NewPageStream(doc Document, scale float64) *PageStream {
	return &PageStream{doc: doc, scale: scale, next: 1}
}

// Next renders the next page. It returns io.EOF once every page was issued or
// the stream was closed. A render failure consumes the page descriptor.
func (s *PageStream) Next(ctx context.Context) (*Raster, PageDescriptor, error) {
	if s.closed || s.next > s.doc.PageCount() {
		return nil, PageDescriptor{}, io.EOF
	}
	page := PageDescriptor{Index: s.next, Scale: s.scale}
	s.next++
	r, err := s.doc.RenderPage(ctx, page)
	if err != nil {
		return nil, page, err
	}
	s.rendered++
	return r, page, nil
}

// Rendered is the number of pages successfully rendered so far.
func (s *PageStream) Rendered() int { return s.rendered }

// Close stops the stream; later Next calls return io.EOF.
func (s *PageStream) Close() { s.closed = true }
