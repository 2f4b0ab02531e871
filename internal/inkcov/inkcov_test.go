package inkcov

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/local/pdfvalidator/internal/verdict"
)

const (
	inkWhite = " 0.00000  0.00000  0.00000  0.00000 CMYK OK\n"
	inkText  = " 0.01234  0.01100  0.00900  0.04321 CMYK OK\n"
	inkFaint = " 0.00000  0.00000  0.00000  0.00001 CMYK OK\n"
)

// fakeGS answers inkcov with coverage and writes texts[page] for txtwrite.
type fakeGS struct {
	coverage string
	texts    map[int]string
	fail     error
	calls    []string
}

func (f *fakeGS) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, strings.Join(args, " "))
	if f.fail != nil {
		return nil, f.fail
	}
	var out, first string
	for _, a := range args {
		switch {
		case a == "-sDEVICE=inkcov":
			return []byte(f.coverage), nil
		case strings.HasPrefix(a, "-dFirstPage="):
			first = strings.TrimPrefix(a, "-dFirstPage=")
		case strings.HasPrefix(a, "-sOutputFile="):
			out = strings.TrimPrefix(a, "-sOutputFile=")
		}
	}
	for page, text := range f.texts {
		if first == strconv.Itoa(page) {
			return nil, os.WriteFile(out, []byte(text), 0o600)
		}
	}
	return nil, nil
}

func newTestStrategy(t *testing.T, f *fakeGS) *Strategy {
	t.Helper()
	gs := NewGhostscript("gs", time.Second)
	gs.run = f.run
	gs.lookPath = func(string) (string, error) { return "/usr/bin/gs", nil }
	s := New(Options{GS: gs, TempDir: t.TempDir()})
	s.pageCount = func(string) (int, error) { return 0, errors.New("not a real pdf") }
	return s
}

var doc = verdict.Document{Name: "t.pdf", Data: []byte("%PDF-1.4")}

func TestParseInkCoverage(t *testing.T) {
	out := "Processing pages 1 through 3.\n" + inkText + inkWhite + "Page 7\n" + inkFaint + "garbage\n"
	pages := ParseInkCoverage([]byte(out))
	if len(pages) != 3 {
		t.Fatalf("parsed %d pages, want 3", len(pages))
	}
	if pages[0].Page != 1 || pages[0].Zero {
		t.Fatalf("page 1 = %+v", pages[0])
	}
	if pages[1].Page != 2 || !pages[1].Zero {
		t.Fatalf("page 2 = %+v", pages[1])
	}
	if pages[2].Page != 7 || pages[2].Zero || pages[2].K != 0.00001 {
		t.Fatalf("page 7 = %+v", pages[2])
	}
	if got := ParseInkCoverage([]byte("Error: /undefined in foo\n")); len(got) != 0 {
		t.Fatalf("parsed %v from error output", got)
	}
}

func TestZeroInkAndNoTextIsInvalid(t *testing.T) {
	f := &fakeGS{coverage: inkText + inkWhite + inkText, texts: map[int]string{2: "  \n\f"}}
	res, err := newTestStrategy(t, f).Classify(context.Background(), doc)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Verdict != verdict.Invalid || res.BlankPage != 2 || res.TotalPages != 3 {
		t.Fatalf("result = %+v", res)
	}
}

func TestZeroInkWithTextIsValid(t *testing.T) {
	f := &fakeGS{coverage: inkWhite + inkText, texts: map[int]string{1: "hidden text layer"}}
	res, err := newTestStrategy(t, f).Classify(context.Background(), doc)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Verdict != verdict.Valid {
		t.Fatalf("result = %+v, want valid", res)
	}
}

func TestMissingTextOutputCountsAsEmpty(t *testing.T) {
	f := &fakeGS{coverage: inkWhite}
	res, err := newTestStrategy(t, f).Classify(context.Background(), doc)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Verdict != verdict.Invalid || res.BlankPage != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestNonZeroInkSkipsTextExtraction(t *testing.T) {
	f := &fakeGS{coverage: inkText + inkFaint}
	res, err := newTestStrategy(t, f).Classify(context.Background(), doc)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Verdict != verdict.Valid || len(f.calls) != 1 {
		t.Fatalf("result = %+v, calls = %v", res, f.calls)
	}
}

func TestMissingGhostscriptIsToolUnavailable(t *testing.T) {
	s := newTestStrategy(t, &fakeGS{})
	s.gs.lookPath = func(string) (string, error) { return "", errors.New("executable file not found in $PATH") }
	_, err := s.Classify(context.Background(), doc)
	var tu *verdict.ToolUnavailableError
	if !errors.As(err, &tu) || tu.Tool != "gs" {
		t.Fatalf("err = %v, want ToolUnavailableError", err)
	}
}

func TestGhostscriptFailures(t *testing.T) {
	var re *verdict.RenderError

	_, err := newTestStrategy(t, &fakeGS{fail: errors.New("exit status 1")}).Classify(context.Background(), doc)
	if !errors.As(err, &re) {
		t.Fatalf("exit failure: err = %v, want RenderError", err)
	}

	_, err = newTestStrategy(t, &fakeGS{coverage: "nothing useful\n"}).Classify(context.Background(), doc)
	if !errors.As(err, &re) {
		t.Fatalf("unparsable output: err = %v, want RenderError", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newTestStrategy(t, &fakeGS{fail: context.Canceled}).Classify(ctx, doc)
	var te *verdict.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("cancelled: err = %v, want TimeoutError", err)
	}
}

func TestWorkspaceRemoved(t *testing.T) {
	f := &fakeGS{coverage: inkWhite, texts: map[int]string{1: ""}}
	s := newTestStrategy(t, f)
	if _, err := s.Classify(context.Background(), doc); err != nil {
		t.Fatalf("classify: %v", err)
	}
	entries, err := os.ReadDir(s.opts.TempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("workspace left behind: %v", entries)
	}
}
