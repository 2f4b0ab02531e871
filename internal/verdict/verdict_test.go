package verdict

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestZeroResultIsNotValid(t *testing.T) {
	var res Result
	if res.Valid() {
		t.Fatal("zero Result reads as valid")
	}
	if res.Verdict != Unknown || res.Verdict.String() != "unknown" {
		t.Fatalf("zero verdict = %v", res.Verdict)
	}
	if Valid.String() != "valid" || Invalid.String() != "invalid" {
		t.Fatalf("names = %s, %s", Valid, Invalid)
	}
	if !(Result{Verdict: Valid}).Valid() || (Result{Verdict: Invalid}).Valid() {
		t.Fatal("Valid() disagrees with Verdict")
	}
}

func TestKind(t *testing.T) {
	cases := map[string]error{
		"decode":           &DecodeError{Reason: "no pages"},
		"render":           fmt.Errorf("wrapped: %w", &RenderError{Page: 2, Err: errors.New("boom")}),
		"tool_unavailable": &ToolUnavailableError{Tool: "gs", Err: errors.New("not found")},
		"timeout":          FromContext(fmt.Errorf("page 3: %w", context.DeadlineExceeded)),
		"io":               &IOError{Op: "write", Path: "/tmp/x", Err: errors.New("disk full")},
		"internal":         ErrTooLarge,
	}
	for want, err := range cases {
		if got := Kind(err); got != want {
			t.Fatalf("Kind(%v) = %q, want %q", err, got, want)
		}
	}
	if Kind(nil) != "" {
		t.Fatal("nil error has a kind")
	}
}
