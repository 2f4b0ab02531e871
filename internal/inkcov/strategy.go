// Package inkcov classifies documents from Ghostscript ink coverage. A page
// is blank only when gs reports zero coverage on every CMYK channel and its
// text extraction is empty as well.
package inkcov

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfvalidator/internal/imagerender"
	"github.com/local/pdfvalidator/internal/metrics"
	"github.com/local/pdfvalidator/internal/verdict"
	"github.com/local/pdfvalidator/internal/workspace"
)

// StrategyName identifies the ink coverage strategy.
const StrategyName = "inkcov"

// Options configures the strategy.
type Options struct {
	GS      *Ghostscript
	TempDir string
	// Timeout bounds the whole classification. 0 means no limit beyond ctx.
	Timeout time.Duration
}

// Strategy is the ink coverage classifier.
type Strategy struct {
	gs        *Ghostscript
	opts      Options
	pageCount func(path string) (int, error)
}

// New builds the strategy. The gs binary is looked up on every Classify so a
// missing install surfaces as ToolUnavailableError rather than a crash.
func New(opts Options) *Strategy {
	if opts.GS == nil {
		opts.GS = NewGhostscript("", 0)
	}
	return &Strategy{gs: opts.GS, opts: opts, pageCount: api.PageCountFile}
}

func (s *Strategy) Name() string { return StrategyName }

func (s *Strategy) Classify(ctx context.Context, doc verdict.Document) (res verdict.Result, err error) {
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
			log.Warn().Err(err).Str("doc", doc.Name).Str("kind", verdict.Kind(err)).Msg("ink coverage classification failed")
			return
		}
		res.Duration = dur
		metrics.ObserveClassification(StrategyName, res.Verdict.String(), dur)
	}()

	if _, err := s.gs.lookPath(s.gs.Binary); err != nil {
		return verdict.Result{}, &verdict.ToolUnavailableError{Tool: s.gs.Binary, Err: err}
	}
	if len(doc.Data) == 0 {
		return verdict.Result{}, &verdict.DecodeError{Reason: "empty input"}
	}
	data := doc.Data
	if doc.Password != "" {
		if data, err = imagerender.Decrypt(doc.Data, doc.Password); err != nil {
			return verdict.Result{}, err
		}
	}

	ws, err := workspace.New(s.opts.TempDir)
	if err != nil {
		return verdict.Result{}, err
	}
	defer ws.Close()
	input, err := ws.WriteFile("input.pdf", data)
	if err != nil {
		return verdict.Result{}, err
	}

	out, err := s.gs.Run(ctx, "-q", "-o", "-", "-sDEVICE=inkcov", input)
	if err != nil {
		return verdict.Result{}, wrapRun(err, 0)
	}
	pages := ParseInkCoverage(out)
	if len(pages) == 0 {
		return verdict.Result{}, &verdict.RenderError{Err: errors.New("ghostscript reported no ink coverage")}
	}
	s.crossCheck(doc.Name, input, len(pages))

	res = verdict.Result{Verdict: verdict.Valid, Strategy: StrategyName, TotalPages: len(pages), PagesChecked: len(pages)}
	for _, p := range pages {
		if !p.Zero {
			metrics.IncPage(verdict.HasContent.String())
			continue
		}
		empty, err := s.pageTextEmpty(ctx, ws, input, p.Page)
		if err != nil {
			return verdict.Result{}, err
		}
		if !empty {
			log.Debug().Str("doc", doc.Name).Int("page", p.Page).Msg("zero ink coverage but page has text")
			metrics.IncPage(verdict.HasContent.String())
			continue
		}
		metrics.IncPage(verdict.Blank.String())
		res.Verdict = verdict.Invalid
		res.BlankPage = p.Page
		log.Debug().Str("doc", doc.Name).Int("page", p.Page).Msg("blank page confirmed by ink and text")
		return res, nil
	}
	return res, nil
}

// pageTextEmpty extracts one page's text with txtwrite. A missing output
// file means gs found nothing to write.
func (s *Strategy) pageTextEmpty(ctx context.Context, ws *workspace.Workspace, input string, page int) (bool, error) {
	name := fmt.Sprintf("text-%04d.txt", page)
	n := strconv.Itoa(page)
	_, err := s.gs.Run(ctx, "-q", "-dBATCH", "-dNOPAUSE", "-sDEVICE=txtwrite",
		"-dFirstPage="+n, "-dLastPage="+n, "-sOutputFile="+ws.Path(name), input)
	if err != nil {
		return false, wrapRun(err, page)
	}
	defer ws.Remove(name)
	b, err := ws.ReadFile(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	return strings.TrimSpace(string(b)) == "", nil
}

// crossCheck compares the gs page count with pdfcpu's; a mismatch is only logged.
func (s *Strategy) crossCheck(name, path string, gsPages int) {
	n, err := s.pageCount(path)
	if err != nil {
		log.Debug().Err(err).Str("doc", name).Msg("pdfcpu page count unavailable")
		return
	}
	if n != gsPages {
		log.Warn().Str("doc", name).Int("pdfcpu_pages", n).Int("gs_pages", gsPages).Msg("page count mismatch")
	}
}

func wrapRun(err error, page int) error {
	var te *verdict.TimeoutError
	if errors.As(err, &te) {
		return err
	}
	return &verdict.RenderError{Page: page, Err: err}
}
