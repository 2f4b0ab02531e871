package pdftest

import (
	"errors"

	fitz "github.com/gen2brain/go-fitz"

	"github.com/local/pdfvalidator/internal/imagerender"
	"github.com/local/pdfvalidator/internal/verdict"
)

// fitzOpener implements Opener using github.com/gen2brain/go-fitz.
type fitzOpener struct{}

func (fitzOpener) Open(data []byte, password string) (Doc, error) {
	if len(data) == 0 {
		return nil, &verdict.DecodeError{Reason: "empty input"}
	}
	if password != "" {
		plain, err := imagerender.Decrypt(data, password)
		if err != nil {
			return nil, err
		}
		data = plain
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, &verdict.DecodeError{Reason: "document is encrypted", Err: err}
		}
		return nil, &verdict.DecodeError{Reason: "cannot open document", Err: err}
	}
	return fitzDoc{doc}, nil
}

// Ensure default opener is set to fitz-based implementation.
func init() {
	setDefaultOpener(fitzOpener{})
}

// --- Adapters ---

type fitzDoc struct{ *fitz.Document }

func (d fitzDoc) Page(i int) (Page, error) {
	text, err := d.Document.Text(i)
	if err != nil {
		return nil, err
	}
	return &fitzPage{text: text}, nil
}

type fitzPage struct {
	text string
}

func (p *fitzPage) Text() (string, error) { return p.text, nil }
func (p *fitzPage) Close()                 { /* no-op */ }
