package whiteness

import (
	"testing"

	"github.com/local/pdfvalidator/internal/imagerender"
	"github.com/local/pdfvalidator/internal/imagerender/rendertest"
	"github.com/local/pdfvalidator/internal/verdict"
)

func rgb(w, h int, r, g, b byte) *imagerender.Raster {
	pix := make([]byte, w*h*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = r, g, b
	}
	return &imagerender.Raster{Width: w, Height: h, Channels: 3, Stride: w * 3, Pix: pix}
}

func TestStrictWhitePageIsBlank(t *testing.T) {
	c := New(Options{})
	for _, r := range []*imagerender.Raster{
		rendertest.SolidRaster(10, 10, 255, 255, 255, 255),
		rgb(10, 10, 255, 255, 255),
	} {
		if got := c.Classify(r); got != verdict.Blank {
			t.Fatalf("channels=%d: got %v, want blank", r.Channels, got)
		}
	}
}

func TestStrictSingleBlackPixelHasContent(t *testing.T) {
	r := rendertest.SolidRaster(10, 10, 255, 255, 255, 255)
	p := r.Pixel(5, 5)
	p[0], p[1], p[2] = 0, 0, 0

	if got := New(Options{Mode: Strict}).Classify(r); got != verdict.HasContent {
		t.Fatalf("got %v, want content", got)
	}
}

func TestStrictNearWhiteHasContent(t *testing.T) {
	if got := New(Options{}).Classify(rgb(4, 4, 254, 255, 255)); got != verdict.HasContent {
		t.Fatalf("got %v, want content", got)
	}
}

func TestStrictTransparentPageHasContent(t *testing.T) {
	// RGB is irrelevant once alpha says the pixel is not opaque.
	for _, rgbv := range [][3]byte{{255, 255, 255}, {10, 200, 30}} {
		r := rendertest.SolidRaster(6, 6, rgbv[0], rgbv[1], rgbv[2], 0)
		if got := New(Options{Mode: Strict}).Classify(r); got != verdict.HasContent {
			t.Fatalf("rgb=%v alpha=0: got %v, want content", rgbv, got)
		}
	}
}

func TestRelaxedIgnoresGreyAndTransparent(t *testing.T) {
	c := New(Options{Mode: Relaxed})
	if got := c.Classify(rgb(8, 8, 0, 0, 0)); got != verdict.Blank {
		t.Fatalf("black page: got %v, want blank under relaxed rule", got)
	}
	if got := c.Classify(rendertest.SolidRaster(8, 8, 255, 0, 0, 0)); got != verdict.Blank {
		t.Fatalf("transparent red: got %v, want blank", got)
	}
}

func TestRelaxedTolerance(t *testing.T) {
	c := New(Options{Mode: Relaxed, Tolerance: 30})
	r := rgb(8, 8, 250, 250, 250)
	p := r.Pixel(2, 2)
	p[0], p[1], p[2] = 200, 230, 230 // max diff 30: not above tolerance
	if got := c.Classify(r); got != verdict.Blank {
		t.Fatalf("diff 30: got %v, want blank", got)
	}
	p[0] = 199 // diff 31
	if got := c.Classify(r); got != verdict.HasContent {
		t.Fatalf("diff 31: got %v, want content", got)
	}
}

func TestStrideSkipsUnsampledPixels(t *testing.T) {
	r := rendertest.SolidRaster(10, 10, 255, 255, 255, 255)
	p := r.Pixel(1, 1)
	p[0] = 0

	if got := New(Options{Stride: 2}).Classify(r); got != verdict.Blank {
		t.Fatalf("stride 2 sampled (1,1): got %v", got)
	}
	if got := New(Options{Stride: 1}).Classify(r); got != verdict.HasContent {
		t.Fatalf("stride 1: got %v, want content", got)
	}
}

func TestThumbnailKeepsLargeContent(t *testing.T) {
	r := rendertest.SolidRaster(300, 200, 255, 255, 255, 255)
	for y := 50; y < 150; y++ {
		for x := 100; x < 200; x++ {
			p := r.Pixel(x, y)
			p[0], p[1], p[2] = 0, 0, 0
		}
	}
	c := New(Options{ThumbnailMax: 30})
	if got := c.Classify(r); got != verdict.HasContent {
		t.Fatalf("got %v, want content", got)
	}
	if got := c.Classify(rendertest.SolidRaster(300, 200, 255, 255, 255, 255)); got != verdict.Blank {
		t.Fatalf("white thumbnail: got %v, want blank", got)
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"": Strict, "strict": Strict, " Relaxed ": Relaxed}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("fuzzy"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestRelaxedReadsFourthChannelOnlyAsAlpha(t *testing.T) {
	c := New(Options{Mode: Relaxed})
	// 3-channel red with a zero blue byte must not be mistaken for transparency
	if got := c.Classify(rgb(4, 4, 255, 0, 0)); got != verdict.HasContent {
		t.Fatalf("opaque rgb red: got %v, want content", got)
	}
	if got := c.Classify(rendertest.SolidRaster(4, 4, 255, 0, 0, 255)); got != verdict.HasContent {
		t.Fatalf("opaque rgba red: got %v, want content", got)
	}
}

func TestNewFillsDefaults(t *testing.T) {
	c := New(Options{Stride: -3})
	if c.Mode() != Strict {
		t.Fatalf("mode = %s", c.Mode())
	}
	if opts := c.Options(); opts.Tolerance != DefaultTolerance || opts.Stride != 1 {
		t.Fatalf("options = %+v", opts)
	}
}
