package inkcov

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfvalidator/internal/verdict"
)

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Ghostscript runs gs subprocesses with a per-invocation timeout.
type Ghostscript struct {
	Binary  string
	Timeout time.Duration

	run      Runner
	lookPath func(string) (string, error)
}

// DefaultTimeout bounds a single gs invocation.
const DefaultTimeout = 20 * time.Second

// NewGhostscript uses binary ("gs" when empty) found on PATH.
func NewGhostscript(binary string, timeout time.Duration) *Ghostscript {
	if binary == "" {
		binary = "gs"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Ghostscript{Binary: binary, Timeout: timeout, run: execRunner, lookPath: exec.LookPath}
}

// CheckInstallation verifies the binary is on PATH and reports its version.
func (g *Ghostscript) CheckInstallation(ctx context.Context) (string, error) {
	if _, err := g.lookPath(g.Binary); err != nil {
		return "", &verdict.ToolUnavailableError{Tool: g.Binary, Err: err}
	}
	out, err := g.Run(ctx, "--version")
	if err != nil {
		return "", &verdict.ToolUnavailableError{Tool: g.Binary, Err: err}
	}
	return strings.TrimSpace(string(out)), nil
}

// Run invokes gs with args. A deadline hit, either the caller's or the
// per-invocation one, becomes a TimeoutError.
func (g *Ghostscript) Run(ctx context.Context, args ...string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()
	start := time.Now()
	out, err := g.run(cctx, g.Binary, args...)
	log.Debug().Str("cmd", g.Binary+" "+strings.Join(args, " ")).Dur("elapsed", time.Since(start)).Msg("ghostscript command")
	if err != nil {
		if cerr := cctx.Err(); cerr != nil {
			return nil, &verdict.TimeoutError{Err: fmt.Errorf("%s: %w", g.Binary, cerr)}
		}
		return nil, err
	}
	return out, nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && stderr.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return out, nil
}
