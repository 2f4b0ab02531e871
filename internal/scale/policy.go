// Package scale picks the rasterization scale from the input file size.
package scale

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultBase is used for files below every band.
	DefaultBase = 0.25
	// MinScale is the floor for any selected scale.
	MinScale = 0.05
)

// Band lowers the scale for files strictly larger than AboveBytes.
type Band struct {
	AboveBytes int64
	Scale      float64
}

// Policy maps file size to a scale factor.
type Policy struct {
	Base  float64
	Bands []Band
}

// DefaultPolicy: 0.25, 0.2 above 20MB, 0.15 above 50MB.
func DefaultPolicy() Policy {
	return Policy{
		Base: DefaultBase,
		Bands: []Band{
			{AboveBytes: 20 << 20, Scale: 0.2},
			{AboveBytes: 50 << 20, Scale: 0.15},
		},
	}
}

// Normalize sorts bands by size and clamps scales so that larger files never
// get a larger scale and no scale drops below MinScale.
func (p Policy) Normalize() Policy {
	out := Policy{Base: p.Base}
	if out.Base <= 0 {
		out.Base = DefaultBase
	}
	if out.Base < MinScale {
		out.Base = MinScale
	}
	out.Bands = append([]Band(nil), p.Bands...)
	sort.SliceStable(out.Bands, func(i, j int) bool { return out.Bands[i].AboveBytes < out.Bands[j].AboveBytes })
	prev := out.Base
	for i := range out.Bands {
		s := out.Bands[i].Scale
		if s > prev {
			s = prev
		}
		if s < MinScale {
			s = MinScale
		}
		out.Bands[i].Scale = s
		prev = s
	}
	return out
}

// Select returns the scale for a file of size bytes. It has no side effects
// and is non-increasing in size.
func (p Policy) Select(size int64) float64 {
	n := p.Normalize()
	s := n.Base
	for _, b := range n.Bands {
		if size > b.AboveBytes {
			s = b.Scale
		}
	}
	return s
}

// ParseBands reads "20MB=0.2,50MB=0.15". Sizes accept B, KB, MB and GB
// suffixes (powers of 1024) or a bare byte count.
func ParseBands(s string) ([]Band, error) {
	var out []Band
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		size, sc, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("scale band %q: want SIZE=SCALE", part)
		}
		n, err := ParseSize(size)
		if err != nil {
			return nil, fmt.Errorf("scale band %q: %w", part, err)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(sc), 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("scale band %q: scale must be a positive number", part)
		}
		out = append(out, Band{AboveBytes: n, Scale: f})
	}
	return out, nil
}

// ParseSize parses sizes like "20MB", "512KB", "1GB" or "1048576".
func ParseSize(s string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(v, u.suffix) {
			v = strings.TrimSpace(strings.TrimSuffix(v, u.suffix))
			mult = u.mult
			break
		}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return int64(f * float64(mult)), nil
}
