package pdftest

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/local/pdfvalidator/internal/imagerender/rendertest"
	"github.com/local/pdfvalidator/internal/verdict"
)

type fakeOpener struct {
	pages   []string
	openErr error
	opened  int
	closed  int
}

func (f *fakeOpener) Open(data []byte, password string) (Doc, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	return &fakeDoc{f: f}, nil
}

type fakeDoc struct{ f *fakeOpener }

func (d *fakeDoc) NumPage() int { return len(d.f.pages) }
func (d *fakeDoc) Close() error { d.f.closed++; return nil }
func (d *fakeDoc) Page(i int) (Page, error) {
	if d.f.pages[i] == "ERR" {
		return nil, errors.New("no text layer")
	}
	return fakePage(d.f.pages[i]), nil
}

type fakePage string

func (p fakePage) Text() (string, error) { return string(p), nil }
func (p fakePage) Close()                {}

var doc = verdict.Document{Name: "t.pdf", Data: []byte("%PDF-")}

func prose(lines int) string {
	return strings.Repeat("The quick brown fox jumps over the lazy dog.\n", lines)
}

func TestSampleIndices(t *testing.T) {
	if got := sampleIndices(3, 5); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Fatalf("small doc sample = %v", got)
	}
	got := sampleIndices(100, 5)
	if len(got) != 5 || got[0] != 0 || got[len(got)-1] != 99 {
		t.Fatalf("sample = %v", got)
	}
	found := false
	for _, i := range got {
		if i == 50 {
			found = true
		}
	}
	if !found {
		t.Fatalf("sample %v lacks middle page", got)
	}
	if again := sampleIndices(100, 5); !reflect.DeepEqual(got, again) {
		t.Fatalf("sampling not deterministic: %v vs %v", got, again)
	}
}

func TestAnalyzeDenseTextIsNotSuspect(t *testing.T) {
	op := &fakeOpener{pages: []string{prose(5), prose(6), prose(4)}}
	diag, err := analyzeWith(context.Background(), op, doc, AnalyzeOptions{})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if diag.Suspect {
		t.Fatalf("dense document flagged suspect: %+v", diag)
	}
	if op.closed != 1 {
		t.Fatalf("doc closed %d times", op.closed)
	}
}

func TestAnalyzeSparseTextIsSuspect(t *testing.T) {
	cases := map[string][]string{
		"few chars":       {"a\nb\nc", "d\ne\nf"},
		"single line":     {strings.Repeat("word ", 40), strings.Repeat("word ", 40)},
		"empty":           {"", "   \n\t"},
		"extract failure": {"ERR", "ERR"},
	}
	for name, pages := range cases {
		t.Run(name, func(t *testing.T) {
			diag, err := analyzeWith(context.Background(), &fakeOpener{pages: pages}, doc, AnalyzeOptions{})
			if err != nil {
				t.Fatalf("analyze: %v", err)
			}
			if !diag.Suspect {
				t.Fatalf("not suspect: %+v", diag)
			}
		})
	}
}

func TestAnalyzeErrors(t *testing.T) {
	_, err := analyzeWith(context.Background(), &fakeOpener{}, doc, AnalyzeOptions{})
	var de *verdict.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("zero pages: err = %v, want DecodeError", err)
	}
	_, err = analyzeWith(context.Background(), &fakeOpener{openErr: errors.New("bad xref")}, doc, AnalyzeOptions{})
	if !errors.As(err, &de) {
		t.Fatalf("open failure: err = %v, want DecodeError", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = analyzeWith(ctx, &fakeOpener{pages: []string{"x"}}, doc, AnalyzeOptions{})
	var te *verdict.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("cancelled: err = %v, want TimeoutError", err)
	}
}

func TestTextStrategyValidWithoutRendering(t *testing.T) {
	r := &rendertest.Renderer{Pages: []rendertest.PageFunc{rendertest.White(4, 4), rendertest.White(4, 4)}}
	s := newTextStrategy(&fakeOpener{pages: []string{prose(5), prose(5)}}, r, StrategyOptions{})
	res, err := s.Classify(context.Background(), doc)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Verdict != verdict.Valid || res.Strategy != StrategyName {
		t.Fatalf("result = %+v", res)
	}
	if r.Opens() != 0 {
		t.Fatal("renderer used for a dense document")
	}
}

func TestTextStrategyConfirmsSuspects(t *testing.T) {
	sparse := []string{"", "", "", "", ""}
	content := rendertest.WithPixel(4, 4, 1, 1, 0, 0, 0)
	white := rendertest.White(4, 4)

	cases := []struct {
		name      string
		pages     []rendertest.PageFunc
		want      verdict.Verdict
		blankPage int
	}{
		{"scanned pages", []rendertest.PageFunc{content, content, content, content, content}, verdict.Valid, 0},
		{"one of five blank", []rendertest.PageFunc{content, content, white, content, content}, verdict.Valid, 0},
		{"two of five blank", []rendertest.PageFunc{content, white, content, white, content}, verdict.Invalid, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := &rendertest.Renderer{Pages: c.pages}
			s := newTextStrategy(&fakeOpener{pages: sparse}, r, StrategyOptions{})
			res, err := s.Classify(context.Background(), doc)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if res.Verdict != c.want || res.BlankPage != c.blankPage || res.PagesChecked != 5 {
				t.Fatalf("result = %+v", res)
			}
			if r.OpenDocuments() != 0 {
				t.Fatal("render document left open")
			}
		})
	}
}

func TestTextStrategyConfirmRatioIsTunable(t *testing.T) {
	r := &rendertest.Renderer{Pages: []rendertest.PageFunc{
		rendertest.White(4, 4), rendertest.WithPixel(4, 4, 0, 0, 0, 0, 0),
	}}
	s := newTextStrategy(&fakeOpener{pages: []string{"", ""}}, r, StrategyOptions{ConfirmRatio: 0.5})
	res, err := s.Classify(context.Background(), doc)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Verdict != verdict.Valid {
		t.Fatalf("1 of 2 blank with ratio 0.5: %+v", res)
	}
}

func TestTextStrategyRenderErrorHasNoVerdict(t *testing.T) {
	r := &rendertest.Renderer{Pages: []rendertest.PageFunc{rendertest.Failing("broken")}}
	s := newTextStrategy(&fakeOpener{pages: []string{""}}, r, StrategyOptions{})
	res, err := s.Classify(context.Background(), doc)
	var re *verdict.RenderError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RenderError", err)
	}
	if res != (verdict.Result{}) {
		t.Fatalf("result %+v alongside error", res)
	}
}
