package orchestrator

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"

	"github.com/local/pdfvalidator/internal/metrics"
	"github.com/local/pdfvalidator/internal/scale"
	"github.com/local/pdfvalidator/internal/verdict"
	"github.com/local/pdfvalidator/internal/whiteness"
)

// VerdictCache stores finished results by fingerprint.
type VerdictCache interface {
	Get(ctx context.Context, key string) (verdict.Result, bool, error)
	Set(ctx context.Context, key string, r verdict.Result, ttl time.Duration) error
}

// CachedStrategy serves repeat documents from a cache. Cache failures are
// logged and never change the outcome of a classification.
type CachedStrategy struct {
	inner   verdict.Strategy
	cache   VerdictCache
	ttl     time.Duration
	variant string
}

// NewCachedStrategy wraps inner. variant distinguishes configurations of the
// same strategy (see CacheVariant) so they never share entries.
func NewCachedStrategy(inner verdict.Strategy, cache VerdictCache, ttl time.Duration, variant string) *CachedStrategy {
	return &CachedStrategy{inner: inner, cache: cache, ttl: ttl, variant: variant}
}

func (c *CachedStrategy) Name() string { return c.inner.Name() }

func (c *CachedStrategy) Classify(ctx context.Context, doc verdict.Document) (verdict.Result, error) {
	key := c.Key(doc)
	if r, ok, err := c.cache.Get(ctx, key); err != nil {
		metrics.IncCache("error")
		log.Warn().Err(err).Str("doc", doc.Name).Msg("verdict cache read failed")
	} else if ok {
		metrics.IncCache("hit")
		r.Cached = true
		log.Debug().Str("doc", doc.Name).Str("verdict", r.Verdict.String()).Msg("verdict cache hit")
		return r, nil
	} else {
		metrics.IncCache("miss")
	}

	res, err := c.inner.Classify(ctx, doc)
	if err != nil {
		return verdict.Result{}, err
	}
	if serr := c.cache.Set(ctx, key, res, c.ttl); serr != nil {
		metrics.IncCache("error")
		log.Warn().Err(serr).Str("doc", doc.Name).Msg("verdict cache write failed")
	} else {
		metrics.IncCache("store")
	}
	return res, nil
}

// CacheVariant fingerprints every setting that can change a visual verdict:
// the whiteness rule with its tuning and the scale policy.
func CacheVariant(opts whiteness.Options, policy scale.Policy) string {
	policy = policy.Normalize()
	var b strings.Builder
	fmt.Fprintf(&b, "%s-t%d-s%d-m%d-b%g", opts.Mode, opts.Tolerance, opts.Stride, opts.ThumbnailMax, policy.Base)
	for _, band := range policy.Bands {
		fmt.Fprintf(&b, "-%d=%g", band.AboveBytes, band.Scale)
	}
	return b.String()
}

// Key is <strategy>:<variant>:<blake2b-256 of bytes, password and scale>.
func (c *CachedStrategy) Key(doc verdict.Document) string {
	h, _ := blake2b.New256(nil)
	h.Write(doc.Data)
	h.Write([]byte{0})
	h.Write([]byte(doc.Password))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(doc.ScaleOverride, 'g', -1, 64)))
	return c.inner.Name() + ":" + c.variant + ":" + hex.EncodeToString(h.Sum(nil))
}
