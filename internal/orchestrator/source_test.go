package orchestrator

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var samplePDF = []byte("%PDF-1.4\n%%EOF\n")

type stubFetcher struct{ refs []string }

func (s *stubFetcher) Download(ctx context.Context, ref string) ([]byte, error) {
	s.refs = append(s.refs, ref)
	return samplePDF, nil
}

func TestLoadDocumentSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "local.pdf")
	if err := os.WriteFile(path, samplePDF, 0o600); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/remote.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(samplePDF)
	}))
	defer srv.Close()

	s3 := &stubFetcher{}
	l := &Loader{S3: s3, HTTP: srv.Client(), LocalRoot: dir, HTTPHosts: []string{"127.0.0.1"}}
	refs := map[string]string{
		path:                              "local.pdf",
		"file://" + path:                  "local.pdf",
		path + "#page=2":                  "local.pdf",
		"local.pdf":                       "local.pdf",
		srv.URL + "/remote.pdf":           "remote.pdf",
		"s3://bucket/dir/stored.pdf":      "stored.pdf",
		"data:application/pdf;base64," + base64.StdEncoding.EncodeToString(samplePDF): "inline.pdf",
	}
	for ref, name := range refs {
		doc, err := l.LoadDocument(context.Background(), ref)
		if err != nil {
			t.Fatalf("%s: %v", ref, err)
		}
		if !bytes.Equal(doc.Data, samplePDF) || doc.Name != name {
			t.Fatalf("%s: name=%q data=%q", ref, doc.Name, doc.Data)
		}
	}
	if len(s3.refs) != 1 || s3.refs[0] != "s3://bucket/dir/stored.pdf" {
		t.Fatalf("s3 refs = %v", s3.refs)
	}
}

func TestLoadDocumentFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	dir := t.TempDir()
	l := &Loader{HTTP: srv.Client(), LocalRoot: dir, HTTPHosts: []string{"*"}}
	for _, ref := range []string{
		filepath.Join(dir, "missing.pdf"),
		srv.URL + "/gone.pdf",
		"s3://bucket/key.pdf",
		"data:application/pdf,plain",
		"data:application/pdf;base64,!!!",
	} {
		if _, err := l.LoadDocument(context.Background(), ref); err == nil {
			t.Fatalf("%s: expected error", ref)
		}
	}
}

func TestSizeLimit(t *testing.T) {
	l := &Loader{MaxBytes: 8}
	if _, err := l.ReadDocument("big.pdf", bytes.NewReader(samplePDF)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	l.MaxBytes = int64(len(samplePDF))
	doc, err := l.ReadDocument("ok.pdf", bytes.NewReader(samplePDF))
	if err != nil || doc.Size() != int64(len(samplePDF)) {
		t.Fatalf("doc size %d, err %v", doc.Size(), err)
	}
}

func TestLoadDocumentSourceRestrictions(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.pdf")
	if err := os.WriteFile(secret, samplePDF, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(secret, filepath.Join(root, "link.pdf")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	var hits int
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write(samplePDF)
	}))
	defer target.Close()
	// localhost and 127.0.0.1 name the same listener but different hosts
	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, strings.Replace(target.URL, "127.0.0.1", "localhost", 1)+"/doc.pdf", http.StatusFound)
	}))
	defer redirect.Close()

	cases := []struct {
		name   string
		loader *Loader
		ref    string
	}{
		{"local disabled", &Loader{}, secret},
		{"file url disabled", &Loader{}, "file://" + secret},
		{"outside root", &Loader{LocalRoot: root}, secret},
		{"dot dot", &Loader{LocalRoot: root}, "../" + filepath.Base(outside) + "/secret.pdf"},
		{"symlink escape", &Loader{LocalRoot: root}, filepath.Join(root, "link.pdf")},
		{"http disabled", &Loader{}, target.URL + "/doc.pdf"},
		{"host not listed", &Loader{HTTPHosts: []string{"docs.example.com"}}, target.URL + "/doc.pdf"},
		{"redirect off list", &Loader{HTTP: redirect.Client(), HTTPHosts: []string{"127.0.0.1"}}, redirect.URL + "/doc.pdf"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := c.loader.LoadDocument(context.Background(), c.ref); !errors.Is(err, ErrSourceNotAllowed) {
				t.Fatalf("err = %v, want ErrSourceNotAllowed", err)
			}
		})
	}
	if hits != 0 {
		t.Fatalf("restricted fetches reached the server %d times", hits)
	}

	l := &Loader{LocalRoot: root}
	if _, err := l.LoadDocument(context.Background(), filepath.Join(root, "gone.pdf")); !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("missing file err = %v, want ErrSourceNotFound", err)
	}
}
