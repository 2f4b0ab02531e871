package imagerender

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"io"
)

// DefaultJPEGQuality is used when a non-positive quality is passed in.
const DefaultJPEGQuality = 85

// EncodeJPEG writes the raster as JPEG. Alpha is dropped by the encoder.
func EncodeJPEG(w io.Writer, r *Raster, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if err := jpeg.Encode(w, r.RGBA(), &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return nil
}

// DecodeJPEG reads a JPEG back into a raster.
func DecodeJPEG(data []byte) (*Raster, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JPEG: %w", err)
	}
	return FromImage(img), nil
}
