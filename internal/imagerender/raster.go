package imagerender

import (
	"image"
	"image/draw"
)

// PageDescriptor identifies one renderable page. Index is 1-based.
type PageDescriptor struct {
	Index int
	Scale float64
}

// DPI converts the scale factor to the resolution MuPDF expects (72 dpi == 1.0).
func (p PageDescriptor) DPI() float64 { return p.Scale * 72 }

// Raster is a decoded page: Channels is 3 (RGB) or 4 (RGBA), 8 bits each.
type Raster struct {
	Width    int
	Height   int
	Channels int
	Stride   int
	Pix      []byte
}

// Pixel returns the channel values of the pixel at (x, y).
func (r *Raster) Pixel(x, y int) []byte {
	off := y*r.Stride + x*r.Channels
	return r.Pix[off : off+r.Channels]
}

// HasAlpha reports whether the last channel is alpha.
func (r *Raster) HasAlpha() bool { return r.Channels == 4 }

// Release drops the pixel buffer so it can be collected before the next page
// is rendered. The raster must not be used afterwards.
func (r *Raster) Release() {
	if r == nil {
		return
	}
	r.Pix = nil
}

// FromRGBA wraps an RGBA image without copying when it starts at the origin.
func FromRGBA(img *image.RGBA) *Raster {
	b := img.Bounds()
	if b.Min == (image.Point{}) {
		return &Raster{Width: b.Dx(), Height: b.Dy(), Channels: 4, Stride: img.Stride, Pix: img.Pix}
	}
	return FromImage(img)
}

// FromImage converts any decoded image into a 4-channel raster.
func FromImage(img image.Image) *Raster {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return FromRGBA(rgba)
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Raster{Width: b.Dx(), Height: b.Dy(), Channels: 4, Stride: dst.Stride, Pix: dst.Pix}
}

// RGBA exposes the raster as an image.RGBA. 4-channel rasters share the buffer.
func (r *Raster) RGBA() *image.RGBA {
	rect := image.Rect(0, 0, r.Width, r.Height)
	if r.Channels == 4 {
		return &image.RGBA{Pix: r.Pix, Stride: r.Stride, Rect: rect}
	}
	dst := image.NewRGBA(rect)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			p := r.Pixel(x, y)
			o := dst.PixOffset(x, y)
			dst.Pix[o], dst.Pix[o+1], dst.Pix[o+2], dst.Pix[o+3] = p[0], p[1], p[2], 0xff
		}
	}
	return dst
}
