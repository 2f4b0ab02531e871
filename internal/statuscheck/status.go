package statuscheck

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// Pinger models the minimal capability we need from a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GhostscriptProbe reports the installed Ghostscript version.
type GhostscriptProbe interface {
	CheckInstallation(ctx context.Context) (string, error)
}

// SlotCounter reports classification slot usage.
type SlotCounter interface {
	InUse() int
	Capacity() int
}

// Checker aggregates health checks for the dependencies the validator uses.
type Checker struct {
	redis    Pinger
	s3       Pinger
	gs       GhostscriptProbe
	slots    SlotCounter
	strategy string
	lookPath func(string) (string, error)
}

// Options configures the Checker. Nil dependencies are reported as not
// configured rather than failing.
type Options struct {
	Redis       Pinger
	S3          Pinger
	Ghostscript GhostscriptProbe
	Slots       SlotCounter
	// Strategy is the active classification strategy, echoed in the summary.
	Strategy string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Slots is the limiter occupancy at the time of the snapshot.
type Slots struct {
	InUse    int `json:"in_use"`
	Capacity int `json:"capacity"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Strategy    string `json:"strategy"`
	Slots       *Slots `json:"slots,omitempty"`
	Redis       Status `json:"redis"`
	S3          Status `json:"s3"`
	Ghostscript Status `json:"ghostscript"`
	MuPDF       Status `json:"mupdf"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{
		redis:    opts.Redis,
		s3:       opts.S3,
		gs:       opts.Ghostscript,
		slots:    opts.Slots,
		strategy: opts.Strategy,
		lookPath: exec.LookPath,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	sum := Summary{
		Strategy:    c.strategy,
		Redis:       c.ping(ctx, c.redis, 2*time.Second, "Cache disabled"),
		S3:          c.ping(ctx, c.s3, 5*time.Second, "Bucket not configured"),
		Ghostscript: c.checkGhostscript(ctx),
		MuPDF:       c.checkMuPDF(),
	}
	if c.slots != nil {
		sum.Slots = &Slots{InUse: c.slots.InUse(), Capacity: c.slots.Capacity()}
	}
	return sum
}

func (c *Checker) ping(ctx context.Context, p Pinger, timeout time.Duration, unset string) Status {
	if p == nil {
		return Status{OK: false, Message: unset}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkGhostscript(ctx context.Context) Status {
	if c.gs == nil {
		return Status{OK: false, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	version, err := c.gs.CheckInstallation(ctx)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Ghostscript " + version}
}

// go-fitz links MuPDF in-process; mutool on PATH only signals a system install.
func (c *Checker) checkMuPDF() Status {
	if _, err := c.lookPath("mutool"); err != nil {
		return Status{OK: true, Message: "Embedded"}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
