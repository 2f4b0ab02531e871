// Package workspace provides request-scoped temporary directories. Every
// classification request gets its own uniquely named directory so concurrent
// requests never share files, and the whole directory goes away on Close.
package workspace

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfvalidator/internal/imagerender"
	"github.com/local/pdfvalidator/internal/verdict"
)

// Prefix names every workspace directory; Sweep relies on it.
const Prefix = "pdfvalidator-"

// Workspace is one request's temporary directory.
type Workspace struct {
	dir  string
	once sync.Once
	err  error
}

// New creates a fresh workspace under base (os.TempDir() when empty).
func New(base string) (*Workspace, error) {
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, &verdict.IOError{Op: "mkdir", Path: base, Err: err}
	}
	dir := filepath.Join(base, Prefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, &verdict.IOError{Op: "mkdir", Path: dir, Err: err}
	}
	return &Workspace{dir: dir}, nil
}

// Dir is the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string { return filepath.Join(w.dir, name) }

// WriteFile stores data under name and returns its path.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	p := w.Path(name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", &verdict.IOError{Op: "write", Path: p, Err: err}
	}
	return p, nil
}

// ReadFile reads a file previously written into the workspace.
func (w *Workspace) ReadFile(name string) ([]byte, error) {
	p := w.Path(name)
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, &verdict.IOError{Op: "read", Path: p, Err: err}
	}
	return b, nil
}

// Remove deletes one file. Missing files are not an error.
func (w *Workspace) Remove(name string) error {
	p := w.Path(name)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return &verdict.IOError{Op: "remove", Path: p, Err: err}
	}
	return nil
}

// ArtifactName is the file name used for a page artifact.
func ArtifactName(page int) string { return fmt.Sprintf("page-%04d.jpg", page) }

// WriteArtifact persists a page raster as JPEG and returns the file name.
func (w *Workspace) WriteArtifact(page int, r *imagerender.Raster, quality int) (string, error) {
	var buf bytes.Buffer
	name := ArtifactName(page)
	if err := imagerender.EncodeJPEG(&buf, r, quality); err != nil {
		return "", &verdict.IOError{Op: "encode", Path: w.Path(name), Err: err}
	}
	if _, err := w.WriteFile(name, buf.Bytes()); err != nil {
		return "", err
	}
	return name, nil
}

// ReadArtifact decodes a page artifact back into a raster.
func (w *Workspace) ReadArtifact(name string) (*imagerender.Raster, error) {
	b, err := w.ReadFile(name)
	if err != nil {
		return nil, err
	}
	r, err := imagerender.DecodeJPEG(b)
	if err != nil {
		return nil, &verdict.IOError{Op: "decode", Path: w.Path(name), Err: err}
	}
	return r, nil
}

// Close removes the workspace and everything in it. It runs once; later
// calls return the first result. A nil workspace is a no-op.
func (w *Workspace) Close() error {
	if w == nil {
		return nil
	}
	w.once.Do(func() {
		if err := os.RemoveAll(w.dir); err != nil {
			w.err = &verdict.IOError{Op: "remove", Path: w.dir, Err: err}
			log.Warn().Err(err).Str("dir", w.dir).Msg("failed to remove workspace")
		}
	})
	return w.err
}
