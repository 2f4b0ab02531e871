package orchestrator

import (
	"context"
	"errors"
	"io"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfvalidator/internal/imagerender"
	"github.com/local/pdfvalidator/internal/metrics"
	"github.com/local/pdfvalidator/internal/scale"
	"github.com/local/pdfvalidator/internal/verdict"
	"github.com/local/pdfvalidator/internal/whiteness"
	"github.com/local/pdfvalidator/internal/workspace"
)

// VisualStrategy is the strategy name of the rasterizing pipeline.
const VisualStrategy = "visual"

// PipelineOptions tunes the visual pipeline.
type PipelineOptions struct {
	Scale      scale.Policy
	Classifier *whiteness.Classifier
	// GCEvery forces a collection every GCEvery pages. 0 disables it.
	GCEvery int
	// Timeout bounds one classification. 0 means no limit beyond ctx.
	Timeout time.Duration
	TempDir string
	// PersistArtifacts writes every rendered page as JPEG into the request
	// workspace for the duration of its classification step.
	PersistArtifacts bool
	// ClassifyFromArtifact classifies the decoded JPEG instead of the raw
	// raster. Implies PersistArtifacts.
	ClassifyFromArtifact bool
	JPEGQuality          int
}

// Pipeline renders pages one at a time and stops at the first blank one.
type Pipeline struct {
	renderer imagerender.Renderer
	opts     PipelineOptions
	// reclaim runs every GCEvery pages
	reclaim func(doc string, page int)
}

// NewPipeline builds the visual strategy on top of renderer.
func NewPipeline(renderer imagerender.Renderer, opts PipelineOptions) *Pipeline {
	if opts.Classifier == nil {
		opts.Classifier = whiteness.New(whiteness.Options{})
	}
	if opts.Scale.Base <= 0 && len(opts.Scale.Bands) == 0 {
		opts.Scale = scale.DefaultPolicy()
	}
	if opts.ClassifyFromArtifact {
		opts.PersistArtifacts = true
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = imagerender.DefaultJPEGQuality
	}
	return &Pipeline{renderer: renderer, opts: opts, reclaim: collect}
}

func (p *Pipeline) Name() string { return VisualStrategy }

// Classify returns Invalid as soon as one page is blank and Valid when every
// page has content. On error the Result is zero. The document and any
// temporary artifacts are released before Classify returns.
func (p *Pipeline) Classify(ctx context.Context, doc verdict.Document) (res verdict.Result, err error) {
	start := time.Now()
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	defer func() {
		dur := time.Since(start)
		if err != nil {
			res = verdict.Result{}
			metrics.ObserveClassification(VisualStrategy, verdict.Kind(err), dur)
			log.Warn().Err(err).Str("doc", doc.Name).Str("kind", verdict.Kind(err)).Dur("elapsed", dur).Msg("classification failed")
			return
		}
		res.Duration = dur
		metrics.ObserveClassification(VisualStrategy, res.Verdict.String(), dur)
		log.Info().
			Str("doc", doc.Name).
			Str("verdict", res.Verdict.String()).
			Int("pages_checked", res.PagesChecked).
			Int("total_pages", res.TotalPages).
			Int("blank_page", res.BlankPage).
			Float64("scale", res.Scale).
			Dur("elapsed", dur).
			Msg("classification finished")
	}()

	sc := doc.ScaleOverride
	if sc <= 0 {
		sc = p.opts.Scale.Select(doc.Size())
	}

	var ws *workspace.Workspace
	if p.opts.PersistArtifacts {
		if ws, err = workspace.New(p.opts.TempDir); err != nil {
			return verdict.Result{}, err
		}
		defer ws.Close()
	}

	if err := ctx.Err(); err != nil {
		return verdict.Result{}, verdict.FromContext(err)
	}
	d, err := p.renderer.Open(ctx, doc.Data, imagerender.OpenOptions{Password: doc.Password})
	if err != nil {
		return verdict.Result{}, err
	}
	defer func() {
		if cerr := d.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("doc", doc.Name).Msg("failed to close document")
		}
	}()

	total := d.PageCount()
	log.Debug().Str("doc", doc.Name).Int64("bytes", doc.Size()).Int("pages", total).Float64("scale", sc).Msg("classifying document")

	stream := imagerender.NewPageStream(d, sc)
	defer stream.Close()

	res = verdict.Result{Verdict: verdict.Valid, Strategy: VisualStrategy, TotalPages: total, Scale: sc}
	for {
		if err := ctx.Err(); err != nil {
			return verdict.Result{}, verdict.FromContext(err)
		}
		raster, page, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return verdict.Result{}, verdict.FromContext(cerr)
			}
			return verdict.Result{}, err
		}

		pv, err := p.classifyPage(ws, page, raster)
		if err != nil {
			return verdict.Result{}, err
		}
		res.PagesChecked++
		metrics.IncPage(pv.String())
		if pv == verdict.Blank {
			res.Verdict = verdict.Invalid
			res.BlankPage = page.Index
			log.Debug().Str("doc", doc.Name).Int("page", page.Index).Msg("blank page found, stopping")
			return res, nil
		}

		if p.opts.GCEvery > 0 && page.Index%p.opts.GCEvery == 0 {
			p.reclaim(doc.Name, page.Index)
		}
	}
	return res, nil
}

// classifyPage releases raster before returning.
func (p *Pipeline) classifyPage(ws *workspace.Workspace, page imagerender.PageDescriptor, raster *imagerender.Raster) (verdict.PageVerdict, error) {
	defer raster.Release()
	if ws == nil {
		return p.opts.Classifier.Classify(raster), nil
	}
	name, err := ws.WriteArtifact(page.Index, raster, p.opts.JPEGQuality)
	if err != nil {
		return verdict.HasContent, err
	}
	defer ws.Remove(name)
	if !p.opts.ClassifyFromArtifact {
		return p.opts.Classifier.Classify(raster), nil
	}
	decoded, err := ws.ReadArtifact(name)
	if err != nil {
		return verdict.HasContent, err
	}
	defer decoded.Release()
	return p.opts.Classifier.Classify(decoded), nil
}

func collect(doc string, page int) {
	runtime.GC()
	debug.FreeOSMemory()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	metrics.ObserveGC(ms.HeapAlloc)
	log.Info().
		Str("doc", doc).
		Int("page", page).
		Uint64("heap_alloc_mb", ms.HeapAlloc>>20).
		Uint64("heap_sys_mb", ms.HeapSys>>20).
		Msg("forced gc")
}
