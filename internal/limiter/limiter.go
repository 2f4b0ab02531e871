package limiter

import (
	"context"

	"github.com/local/pdfvalidator/internal/metrics"
	"github.com/local/pdfvalidator/internal/verdict"
)

// Limiter caps concurrent classifications in this process. Each one holds
// a document and its rendered page in memory, so the cap bounds peak memory.
type Limiter struct {
	sem chan struct{}
}

// New creates a limiter with max slots (1 when max <= 0).
func New(max int) *Limiter {
	if max <= 0 {
		max = 1
	}
	return &Limiter{sem: make(chan struct{}, max)}
}

// Acquire blocks until a slot is free or ctx ends. The returned release
// function must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
		metrics.IncInflight()
		return l.release, nil
	case <-ctx.Done():
		return func() {}, verdict.FromContext(ctx.Err())
	}
}

// InUse reports the number of held slots.
func (l *Limiter) InUse() int { return len(l.sem) }

// Capacity is the configured maximum.
func (l *Limiter) Capacity() int { return cap(l.sem) }

func (l *Limiter) release() {
	<-l.sem
	metrics.DecInflight()
}
