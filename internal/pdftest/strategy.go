package pdftest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfvalidator/internal/imagerender"
	"github.com/local/pdfvalidator/internal/metrics"
	"github.com/local/pdfvalidator/internal/scale"
	"github.com/local/pdfvalidator/internal/verdict"
	"github.com/local/pdfvalidator/internal/whiteness"
)

// StrategyName identifies the text strategy in results and metrics.
const StrategyName = "text"

// DefaultConfirmRatio: a suspect document is invalid when more than this
// share of its sampled pages render blank.
const DefaultConfirmRatio = 0.2

var errRenderedNothing = errors.New("no sampled page could be rendered")

// StrategyOptions configures TextStrategy.
type StrategyOptions struct {
	Analyze      AnalyzeOptions
	ConfirmRatio float64
	Scale        scale.Policy
	Classifier   *whiteness.Classifier
	Timeout      time.Duration
}

// TextStrategy classifies documents by text density, confirming suspects by
// rendering the sampled pages.
type TextStrategy struct {
	opener   Opener
	renderer imagerender.Renderer
	opts     StrategyOptions
}

// NewTextStrategy uses the go-fitz opener for text and renderer for pixels.
func NewTextStrategy(renderer imagerender.Renderer, opts StrategyOptions) *TextStrategy {
	return newTextStrategy(defaultOpener, renderer, opts)
}

func newTextStrategy(opener Opener, renderer imagerender.Renderer, opts StrategyOptions) *TextStrategy {
	if opts.ConfirmRatio <= 0 {
		opts.ConfirmRatio = DefaultConfirmRatio
	}
	if opts.Scale.Base <= 0 && len(opts.Scale.Bands) == 0 {
		opts.Scale = scale.DefaultPolicy()
	}
	if opts.Classifier == nil {
		opts.Classifier = whiteness.New(whiteness.Options{})
	}
	return &TextStrategy{opener: opener, renderer: renderer, opts: opts}
}

func (s *TextStrategy) Name() string { return StrategyName }

func (s *TextStrategy) Classify(ctx context.Context, doc verdict.Document) (res verdict.Result, err error) {
	start := time.Now()
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	defer func() {
		dur := time.Since(start)
		if err != nil {
			res = verdict.Result{}
			metrics.ObserveClassification(StrategyName, verdict.Kind(err), dur)
			return
		}
		res.Duration = dur
		metrics.ObserveClassification(StrategyName, res.Verdict.String(), dur)
	}()

	diag, err := analyzeWith(ctx, s.opener, doc, s.opts.Analyze)
	if err != nil {
		return verdict.Result{}, err
	}
	log.Debug().
		Str("doc", doc.Name).
		Int("pages", diag.TotalPages).
		Ints("sampled", diag.SampledPages).
		Float64("avg_chars", diag.AvgCharsPerPage).
		Float64("avg_lines", diag.AvgLinesPerPage).
		Bool("suspect", diag.Suspect).
		Msg("text density analysed")

	res = verdict.Result{Verdict: verdict.Valid, Strategy: StrategyName, TotalPages: diag.TotalPages}
	if !diag.Suspect {
		res.PagesChecked = len(diag.SampledPages)
		return res, nil
	}
	return s.confirm(ctx, doc, diag, res)
}

// confirm renders the sampled pages and counts blanks.
func (s *TextStrategy) confirm(ctx context.Context, doc verdict.Document, diag *Diagnostics, res verdict.Result) (verdict.Result, error) {
	sc := doc.ScaleOverride
	if sc <= 0 {
		sc = s.opts.Scale.Select(doc.Size())
	}
	res.Scale = sc

	d, err := s.renderer.Open(ctx, doc.Data, imagerender.OpenOptions{Password: doc.Password})
	if err != nil {
		return verdict.Result{}, err
	}
	defer d.Close()

	blank := 0
	for _, idx := range diag.SampledPages {
		if err := ctx.Err(); err != nil {
			return verdict.Result{}, verdict.FromContext(err)
		}
		page := imagerender.PageDescriptor{Index: idx + 1, Scale: sc}
		if page.Index > d.PageCount() {
			continue
		}
		r, err := d.RenderPage(ctx, page)
		if err != nil {
			return verdict.Result{}, err
		}
		pv := s.opts.Classifier.Classify(r)
		r.Release()
		res.PagesChecked++
		metrics.IncPage(pv.String())
		if pv == verdict.Blank {
			blank++
			if res.BlankPage == 0 {
				res.BlankPage = page.Index
			}
		}
	}
	if res.PagesChecked == 0 {
		return verdict.Result{}, &verdict.RenderError{Err: errRenderedNothing}
	}

	ratio := float64(blank) / float64(res.PagesChecked)
	log.Debug().Str("doc", doc.Name).Int("blank", blank).Int("checked", res.PagesChecked).Float64("ratio", ratio).Msg("visual confirmation done")
	if ratio > s.opts.ConfirmRatio {
		res.Verdict = verdict.Invalid
	} else {
		res.BlankPage = 0
	}
	return res, nil
}
