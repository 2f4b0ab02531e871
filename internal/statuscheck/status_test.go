package statuscheck

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type gsProbe struct {
	version string
	err     error
}

func (g gsProbe) CheckInstallation(ctx context.Context) (string, error) { return g.version, g.err }

func TestSummaryReportsEachDependency(t *testing.T) {
	c := New(Options{
		Redis:       pingFunc(func(context.Context) error { return nil }),
		S3:          pingFunc(func(context.Context) error { return errors.New("access denied") }),
		Ghostscript: gsProbe{version: "10.02.1"},
		Strategy:    "inkcov",
	})
	c.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	s := c.Summary(context.Background())
	if s.Strategy != "inkcov" {
		t.Fatalf("strategy = %q", s.Strategy)
	}
	if !s.Redis.OK || s.Redis.Message != "Connected" {
		t.Fatalf("redis = %+v", s.Redis)
	}
	if s.S3.OK || s.S3.Message != "access denied" {
		t.Fatalf("s3 = %+v", s.S3)
	}
	if !s.Ghostscript.OK || !strings.Contains(s.Ghostscript.Message, "10.02.1") {
		t.Fatalf("gs = %+v", s.Ghostscript)
	}
	if !s.MuPDF.OK || s.MuPDF.Message != "Embedded" {
		t.Fatalf("mupdf = %+v", s.MuPDF)
	}
}

func TestUnconfiguredDependencies(t *testing.T) {
	s := New(Options{}).Summary(context.Background())
	if s.Redis.OK || s.S3.OK || s.Ghostscript.OK {
		t.Fatalf("summary = %+v", s)
	}
	if s.Redis.Message != "Cache disabled" || s.S3.Message != "Bucket not configured" {
		t.Fatalf("summary = %+v", s)
	}
	if s.Slots != nil {
		t.Fatalf("slots reported without a limiter: %+v", s.Slots)
	}
}

type slotCounter struct{ inUse, capacity int }

func (s slotCounter) InUse() int    { return s.inUse }
func (s slotCounter) Capacity() int { return s.capacity }

func TestSummaryReportsSlots(t *testing.T) {
	s := New(Options{Slots: slotCounter{inUse: 3, capacity: 4}}).Summary(context.Background())
	if s.Slots == nil || s.Slots.InUse != 3 || s.Slots.Capacity != 4 {
		t.Fatalf("slots = %+v", s.Slots)
	}
}

func TestTrimError(t *testing.T) {
	if got := trimError(context.DeadlineExceeded); got != "timeout" {
		t.Fatalf("got %q", got)
	}
	long := errors.New(strings.Repeat("x", 300))
	if got := trimError(long); len(got) != 120 {
		t.Fatalf("len = %d", len(got))
	}
	if trimError(nil) != "" {
		t.Fatal("nil error should trim to empty")
	}
}
