package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/pdfvalidator/internal/config"
	"github.com/local/pdfvalidator/internal/imagerender"
	"github.com/local/pdfvalidator/internal/inkcov"
	"github.com/local/pdfvalidator/internal/limiter"
	logpkg "github.com/local/pdfvalidator/internal/logger"
	"github.com/local/pdfvalidator/internal/metrics"
	"github.com/local/pdfvalidator/internal/orchestrator"
	"github.com/local/pdfvalidator/internal/pdftest"
	"github.com/local/pdfvalidator/internal/statuscheck"
	"github.com/local/pdfvalidator/internal/storage"
	"github.com/local/pdfvalidator/internal/store"
	"github.com/local/pdfvalidator/internal/verdict"
	"github.com/local/pdfvalidator/internal/whiteness"
	"github.com/local/pdfvalidator/internal/workspace"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()
	cfg, warnings := cfgpkg.FromEnv()

	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		Fields:       map[string]string{"strategy": cfg.Classifier.Strategy},
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()
	for _, w := range warnings {
		log.Warn().Msg("config: " + w)
	}
	metrics.Init()

	gs := inkcov.NewGhostscript(cfg.Ghostscript.Binary, cfg.Ghostscript.Timeout)
	classifier := whiteness.New(whiteness.Options{
		Mode:         cfg.Classifier.WhitenessMode,
		Tolerance:    cfg.Classifier.Tolerance,
		Stride:       cfg.Classifier.PixelStride,
		ThumbnailMax: cfg.Classifier.ThumbnailMax,
	})
	strategy := buildStrategy(cfg, classifier, gs)
	log.Info().
		Str("strategy", strategy.Name()).
		Str("whiteness_mode", string(classifier.Mode())).
		Int("tolerance", classifier.Options().Tolerance).
		Float64("scale_base", cfg.Scale.Base).
		Dur("timeout", cfg.Pipeline.Timeout).
		Msg("classification strategy selected")

	slots := limiter.New(cfg.Pipeline.MaxConcurrent)
	statusOpts := statuscheck.Options{Ghostscript: gs, Slots: slots, Strategy: strategy.Name()}

	// Verdict cache
	if cfg.Cache.RedisURL != "" {
		rv, err := store.NewRedisVerdicts(cfg.Cache.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init redis verdict cache")
		}
		defer rv.Close()
		variant := orchestrator.CacheVariant(classifier.Options(), cfg.Scale)
		if cfg.Classifier.Strategy == pdftest.StrategyName {
			variant += fmt.Sprintf("-text%g/%g/%g/%d", cfg.Text.MinCharsPerPage, cfg.Text.MinLinesPerPage, cfg.Text.ConfirmRatio, cfg.Text.SamplePages)
		}
		strategy = orchestrator.NewCachedStrategy(strategy, rv, cfg.Cache.TTL, variant)
		statusOpts.Redis = rv
		log.Info().Dur("ttl", cfg.Cache.TTL).Str("variant", variant).Msg("verdict cache enabled")
	}

	// Reference sources: local and http(s) stay off unless configured
	maxUpload := cfg.Server.MaxUploadBytes()
	loader := &orchestrator.Loader{
		HTTP:      &http.Client{Timeout: 60 * time.Second},
		MaxBytes:  maxUpload,
		LocalRoot: cfg.Sources.LocalRoot,
		HTTPHosts: cfg.Sources.HTTPHosts,
	}
	log.Info().
		Str("local_root", cfg.Sources.LocalRoot).
		Strs("http_hosts", cfg.Sources.HTTPHosts).
		Msg("reference sources")
	if cfg.Storage.S3Bucket != "" {
		s3c, err := storage.NewS3Client(context.Background(), storage.Options{
			Bucket:          cfg.Storage.S3Bucket,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			MaxBytes:        maxUpload,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 client")
		}
		loader.S3 = s3c
		statusOpts.S3 = s3c
	}

	svc := orchestrator.New(orchestrator.Dependencies{
		Strategy:       strategy,
		Limiter:        slots,
		Status:         statuscheck.New(statusOpts),
		Loader:         loader,
		MaxUploadBytes: maxUpload,
		DefaultBucket:  cfg.Storage.S3Bucket,
	})
	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweepTemps(ctx, cfg.Pipeline.TempDir, cfg.Pipeline.TempMaxAge)

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	fmt.Println("shutdown complete")
}

func buildStrategy(cfg cfgpkg.Config, classifier *whiteness.Classifier, gs *inkcov.Ghostscript) verdict.Strategy {
	renderer := imagerender.NewFitzRenderer()
	switch cfg.Classifier.Strategy {
	case inkcov.StrategyName:
		return inkcov.New(inkcov.Options{GS: gs, TempDir: cfg.Pipeline.TempDir, Timeout: cfg.Pipeline.Timeout})
	case pdftest.StrategyName:
		return pdftest.NewTextStrategy(renderer, pdftest.StrategyOptions{
			Analyze: pdftest.AnalyzeOptions{
				MinCharsPerPage: cfg.Text.MinCharsPerPage,
				MinLinesPerPage: cfg.Text.MinLinesPerPage,
				SamplePages:     cfg.Text.SamplePages,
			},
			ConfirmRatio: cfg.Text.ConfirmRatio,
			Scale:        cfg.Scale,
			Classifier:   classifier,
			Timeout:      cfg.Pipeline.Timeout,
		})
	default:
		return orchestrator.NewPipeline(renderer, orchestrator.PipelineOptions{
			Scale:                cfg.Scale,
			Classifier:           classifier,
			GCEvery:              cfg.Pipeline.GCEveryPages,
			Timeout:              cfg.Pipeline.Timeout,
			TempDir:              cfg.Pipeline.TempDir,
			PersistArtifacts:     cfg.Pipeline.KeepArtifacts,
			ClassifyFromArtifact: cfg.Pipeline.ClassifyFromArtifact,
		})
	}
}

// sweepTemps removes workspaces left behind by crashed processes.
func sweepTemps(ctx context.Context, dir string, maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()
	for {
		workspace.Sweep(dir, maxAge)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
