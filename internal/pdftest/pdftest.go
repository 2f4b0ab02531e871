// Package pdftest implements the text-density pre-filter: documents whose
// sampled pages carry too little extractable text are suspect, and suspects
// are confirmed by rendering the sampled pages.
package pdftest

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/local/pdfvalidator/internal/verdict"
)

// PageProbe captures the result of probing a single PDF page.
type PageProbe struct {
	PageIndex int    `json:"page_index"`
	CharCount int    `json:"char_count"`
	LineCount int    `json:"line_count"`
	Err       string `json:"err,omitempty"`
}

// Diagnostics describes one text-density analysis.
type Diagnostics struct {
	TotalPages      int         `json:"total_pages"`
	SampledPages    []int       `json:"sampled_pages"`
	TotalChars      int         `json:"total_chars"`
	TotalLines      int         `json:"total_lines"`
	AvgCharsPerPage float64     `json:"avg_chars_per_page"`
	AvgLinesPerPage float64     `json:"avg_lines_per_page"`
	Probes          []PageProbe `json:"probes"`
	Suspect         bool        `json:"suspect"`
	DurationMs      int64       `json:"duration_ms"`
}

const (
	DefaultMinCharsPerPage = 50
	DefaultMinLinesPerPage = 2
	DefaultSamplePages     = 5
)

// AnalyzeOptions are the suspect thresholds.
type AnalyzeOptions struct {
	MinCharsPerPage float64
	MinLinesPerPage float64
	SamplePages     int
}

func (o AnalyzeOptions) withDefaults() AnalyzeOptions {
	if o.MinCharsPerPage <= 0 {
		o.MinCharsPerPage = DefaultMinCharsPerPage
	}
	if o.MinLinesPerPage <= 0 {
		o.MinLinesPerPage = DefaultMinLinesPerPage
	}
	if o.SamplePages <= 0 {
		o.SamplePages = DefaultSamplePages
	}
	return o
}

// whitespaceRegex matches any whitespace (Unicode-aware). Used to strip whitespace.
var whitespaceRegex = regexp.MustCompile(`\s+`)

// stripWhitespace removes all Unicode whitespace from the given string.
func stripWhitespace(s string) string {
	return whitespaceRegex.ReplaceAllString(s, "")
}

func countLines(s string) int {
	n := 0
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}

// Doc abstracts a PDF document for text extraction.
type Doc interface {
	NumPage() int
	Page(i int) (Page, error)
	Close() error
}

// Page abstracts a single PDF page for text extraction.
type Page interface {
	Text() (string, error)
	Close()
}

// Opener abstracts opening PDF bytes into a Doc.
type Opener interface {
	Open(data []byte, password string) (Doc, error)
}

// defaultOpener is provided in doc_open_fitz.go using go-fitz.
var defaultOpener Opener

// setDefaultOpener allows swapping the default opener, useful for tests or alternate backends.
func setDefaultOpener(o Opener) { defaultOpener = o }

// analyzeWith samples pages of doc and reports whether its text density makes
// it suspect. Pages whose text cannot be extracted count as empty.
func analyzeWith(ctx context.Context, opener Opener, doc verdict.Document, opts AnalyzeOptions) (*Diagnostics, error) {
	opts = opts.withDefaults()
	if opener == nil {
		return nil, errors.New("no PDF opener configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, verdict.FromContext(err)
	}

	start := time.Now()
	d, err := opener.Open(doc.Data, doc.Password)
	if err != nil {
		var de *verdict.DecodeError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, &verdict.DecodeError{Reason: "cannot open document", Err: err}
	}
	defer d.Close()

	total := d.NumPage()
	if total <= 0 {
		return nil, &verdict.DecodeError{Reason: "document has no pages"}
	}

	sampleIdx := sampleIndices(total, opts.SamplePages)
	diag := &Diagnostics{TotalPages: total, SampledPages: sampleIdx, Probes: make([]PageProbe, 0, len(sampleIdx))}
	for _, idx := range sampleIdx {
		if err := ctx.Err(); err != nil {
			return nil, verdict.FromContext(err)
		}
		probe := PageProbe{PageIndex: idx}
		p, perr := d.Page(idx)
		if perr != nil {
			probe.Err = perr.Error()
			diag.Probes = append(diag.Probes, probe)
			continue
		}
		text, terr := p.Text()
		p.Close()
		if terr != nil {
			probe.Err = terr.Error()
			diag.Probes = append(diag.Probes, probe)
			continue
		}
		// Unicode-aware: count runes after removing whitespace
		probe.CharCount = len([]rune(stripWhitespace(text)))
		probe.LineCount = countLines(text)
		diag.TotalChars += probe.CharCount
		diag.TotalLines += probe.LineCount
		diag.Probes = append(diag.Probes, probe)
	}

	n := float64(len(sampleIdx))
	diag.AvgCharsPerPage = float64(diag.TotalChars) / n
	diag.AvgLinesPerPage = float64(diag.TotalLines) / n
	diag.Suspect = diag.AvgCharsPerPage < opts.MinCharsPerPage || diag.AvgLinesPerPage < opts.MinLinesPerPage
	diag.DurationMs = time.Since(start).Milliseconds()
	return diag, nil
}

// sampleIndices returns sorted 0-based page indices: every page when total
// <= n, otherwise first, middle and last plus distinct fill up to n. The fill
// is seeded from total so the same document always samples the same pages.
func sampleIndices(total, n int) []int {
	if total <= 0 {
		return []int{}
	}
	if n < 3 {
		n = 3
	}
	if total <= n {
		idx := make([]int, total)
		for i := 0; i < total; i++ {
			idx[i] = i
		}
		return idx
	}

	// Base: first, mid, last
	mid := total / 2
	base := map[int]struct{}{0: {}, mid: {}, total - 1: {}}
	rnd := rand.New(rand.NewSource(int64(total)))
	for len(base) < n {
		cand := rnd.Intn(total)
		if _, ok := base[cand]; ok {
			continue
		}
		base[cand] = struct{}{}
	}

	out := make([]int, 0, n)
	for i := range base {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
