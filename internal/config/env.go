package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/local/pdfvalidator/internal/scale"
	"github.com/local/pdfvalidator/internal/whiteness"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig is the HTTP surface.
type ServerConfig struct {
	Port        string
	MaxUploadMB int
}

// ClassifierConfig selects the strategy and the pixel rule.
type ClassifierConfig struct {
	Strategy      string // "visual"|"inkcov"|"text"
	WhitenessMode whiteness.Mode
	Tolerance     int
	PixelStride   int
	ThumbnailMax  int
}

// PipelineConfig bounds one classification.
type PipelineConfig struct {
	GCEveryPages         int
	Timeout              time.Duration
	TempDir              string
	TempMaxAge           time.Duration
	KeepArtifacts        bool
	ClassifyFromArtifact bool
	MaxConcurrent        int
}

// TextConfig tunes the text pre-filter.
type TextConfig struct {
	MinCharsPerPage float64
	MinLinesPerPage float64
	ConfirmRatio    float64
	SamplePages     int
}

// GhostscriptConfig locates the gs binary.
type GhostscriptConfig struct {
	Binary  string
	Timeout time.Duration
}

// CacheConfig enables the Redis verdict cache when RedisURL is set.
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

// StorageConfig enables s3:// document references.
type StorageConfig struct {
	S3Bucket        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SourcesConfig limits what /validate-ref may read. LocalRoot empty disables
// local paths; HTTPHosts empty disables remote fetches ("*" allows any host).
type SourcesConfig struct {
	LocalRoot string
	HTTPHosts []string
}

// Config is the top-level configuration.
type Config struct {
	Logging     LoggingConfig
	Axiom       AxiomConfig
	Server      ServerConfig
	Classifier  ClassifierConfig
	Scale       scale.Policy
	Pipeline    PipelineConfig
	Text        TextConfig
	Ghostscript GhostscriptConfig
	Cache       CacheConfig
	Storage     StorageConfig
	Sources     SourcesConfig
}

// FromEnv loads configuration from environment with sensible defaults.
// Malformed values fall back to the default and are reported in warnings.
func FromEnv() (Config, []string) {
	cfg := Config{}
	env := &envReader{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdfvalidator.log"),
		MaxSizeMB:  env.getInt("LOG_MAX_SIZE_MB", 100),
		MaxBackups: env.getInt("LOG_MAX_BACKUPS", 10),
		MaxAgeDays: env.getInt("LOG_MAX_AGE_DAYS", 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdfvalidator",
		FlushInterval: env.getDuration("AXIOM_FLUSH_INTERVAL", 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:        getEnv("PORT", "8080"),
		MaxUploadMB: env.getInt("MAX_UPLOAD_MB", 100),
	}

	// Classifier
	mode, err := whiteness.ParseMode(getEnv("WHITENESS_MODE", string(whiteness.Strict)))
	if err != nil {
		env.warn(err.Error())
		mode = whiteness.Strict
	}
	cfg.Classifier = ClassifierConfig{
		Strategy:      strings.ToLower(getEnv("STRATEGY", "visual")),
		WhitenessMode: mode,
		Tolerance:     env.getInt("TOLERANCE", whiteness.DefaultTolerance),
		PixelStride:   env.getInt("PIXEL_STRIDE", 1),
		ThumbnailMax:  env.getInt("THUMBNAIL_MAX", 0),
	}
	switch cfg.Classifier.Strategy {
	case "visual", "inkcov", "text":
	default:
		env.warn("unknown STRATEGY " + strconv.Quote(cfg.Classifier.Strategy) + ", using visual")
		cfg.Classifier.Strategy = "visual"
	}

	// Scale
	cfg.Scale = scale.DefaultPolicy()
	cfg.Scale.Base = env.getFloat("SCALE_BASE", cfg.Scale.Base)
	if raw := getEnv("SCALE_BANDS", ""); raw != "" {
		bands, err := scale.ParseBands(raw)
		if err != nil {
			env.warn("SCALE_BANDS: " + err.Error())
		} else {
			cfg.Scale.Bands = bands
		}
	}
	cfg.Scale = cfg.Scale.Normalize()

	// Pipeline
	cfg.Pipeline = PipelineConfig{
		GCEveryPages:         env.getInt("GC_EVERY_PAGES", 100),
		Timeout:              env.getDuration("CLASSIFY_TIMEOUT", 120*time.Second),
		TempDir:              getEnv("TEMP_DIR", os.TempDir()),
		TempMaxAge:           env.getDuration("TEMP_MAX_AGE", time.Hour),
		KeepArtifacts:        parseBool(getEnv("KEEP_ARTIFACTS", "0")),
		ClassifyFromArtifact: parseBool(getEnv("CLASSIFY_FROM_ARTIFACT", "0")),
		MaxConcurrent:        env.getInt("MAX_CONCURRENT", 4),
	}

	cfg.Text = TextConfig{
		MinCharsPerPage: env.getFloat("TEXT_MIN_CHARS_PER_PAGE", 50),
		MinLinesPerPage: env.getFloat("TEXT_MIN_LINES_PER_PAGE", 2),
		ConfirmRatio:    env.getFloat("TEXT_CONFIRM_RATIO", 0.2),
		SamplePages:     env.getInt("TEXT_SAMPLE_PAGES", 5),
	}

	cfg.Ghostscript = GhostscriptConfig{
		Binary:  getEnv("GS_BINARY", "gs"),
		Timeout: env.getDuration("GS_TIMEOUT", 20*time.Second),
	}

	cfg.Cache = CacheConfig{
		RedisURL: getEnv("REDIS_URL", ""),
		TTL:      env.getDuration("CACHE_TTL", 24*time.Hour),
	}

	cfg.Storage = StorageConfig{
		S3Bucket:        getEnv("AWS_S3_BUCKET", ""),
		Region:          getEnv("AWS_REGION", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}

	cfg.Sources = SourcesConfig{
		LocalRoot: getEnv("LOCAL_REF_ROOT", ""),
		HTTPHosts: splitList(getEnv("HTTP_REF_HOSTS", "")),
	}

	return cfg, env.warnings
}

// MaxUploadBytes converts the MB limit. 0 disables it.
func (c ServerConfig) MaxUploadBytes() int64 {
	if c.MaxUploadMB <= 0 {
		return 0
	}
	return int64(c.MaxUploadMB) << 20
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// envReader parses typed values and records a warning for each malformed one.
type envReader struct {
	warnings []string
}

func (e *envReader) warn(msg string) { e.warnings = append(e.warnings, msg) }

func (e *envReader) malformed(key, raw string) {
	e.warn("invalid " + key + " " + strconv.Quote(raw) + ", using default")
}

func (e *envReader) getInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		e.malformed(key, raw)
		return def
	}
	return n
}

func (e *envReader) getFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		e.malformed(key, raw)
		return def
	}
	return f
}

func (e *envReader) getDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		e.malformed(key, raw)
		return def
	}
	return d
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
