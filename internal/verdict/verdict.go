package verdict

import (
	"context"
	"time"
)

// Verdict is the document-level outcome. The zero value is Unknown so a
// Result returned alongside an error never reads as a pass.
type Verdict int

const (
	Unknown Verdict = iota
	Valid
	Invalid
)

func (v Verdict) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// PageVerdict is the outcome for a single rendered page.
type PageVerdict int

const (
	HasContent PageVerdict = iota
	Blank
)

func (p PageVerdict) String() string {
	if p == Blank {
		return "blank"
	}
	return "content"
}

// Document is one classification input. Data holds the raw PDF bytes.
type Document struct {
	Name     string
	Data     []byte
	Password string
	// ScaleOverride bypasses the adaptive scale policy when > 0.
	ScaleOverride float64
}

// Size returns the document size in bytes.
func (d Document) Size() int64 { return int64(len(d.Data)) }

// Result describes a finished classification. It is only meaningful when
// the call that produced it returned a nil error.
type Result struct {
	Verdict      Verdict       `json:"-"`
	Strategy     string        `json:"strategy"`
	TotalPages   int           `json:"total_pages"`
	PagesChecked int           `json:"pages_checked"`
	BlankPage    int           `json:"blank_page,omitempty"`
	Scale        float64       `json:"scale,omitempty"`
	Cached       bool          `json:"cached,omitempty"`
	Duration     time.Duration `json:"-"`
}

// Valid reports whether the document passed.
func (r Result) Valid() bool { return r.Verdict == Valid }

// Strategy classifies a whole document. Implementations are chosen once per
// deployment and never combined within one request.
type Strategy interface {
	Name() string
	Classify(ctx context.Context, doc Document) (Result, error)
}
