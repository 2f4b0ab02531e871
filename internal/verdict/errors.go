package verdict

import (
	"context"
	"errors"
	"fmt"
)

// ErrTooLarge is returned by every document source when the input exceeds
// the configured byte limit.
var ErrTooLarge = errors.New("document exceeds size limit")

// DecodeError means the document could not be opened: corrupt, not a PDF,
// encrypted without a usable password, or without pages.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode pdf: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode pdf: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RenderError means a specific page could not be rasterized or analysed.
// Page is 0 when the failure is not tied to one page.
type RenderError struct {
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("render: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ToolUnavailableError means an external analysis tool is missing. It is a
// configuration problem, not a classification failure.
type ToolUnavailableError struct {
	Tool string
	Err  error
}

func (e *ToolUnavailableError) Error() string {
	return fmt.Sprintf("tool %q unavailable: %v", e.Tool, e.Err)
}

func (e *ToolUnavailableError) Unwrap() error { return e.Err }

// TimeoutError means the classification budget was exceeded or the caller
// went away before a verdict was reached.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("classification timed out: %v", e.Err) }

func (e *TimeoutError) Unwrap() error { return e.Err }

// IOError is a temporary artifact read/write failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// FromContext converts a context error into a TimeoutError. Other errors are
// returned unchanged.
func FromContext(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		var te *TimeoutError
		if errors.As(err, &te) {
			return err
		}
		return &TimeoutError{Err: err}
	}
	return err
}

// Kind names the error category for logs, metrics and HTTP mapping.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var (
		decodeErr  *DecodeError
		renderErr  *RenderError
		toolErr    *ToolUnavailableError
		timeoutErr *TimeoutError
		ioErr      *IOError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &toolErr):
		return "tool_unavailable"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &renderErr):
		return "render"
	case errors.As(err, &ioErr):
		return "io"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "internal"
	}
}
