package inkcov

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
)

// PageCoverage is the ink coverage gs reported for one page, per CMYK channel.
type PageCoverage struct {
	Page       int
	C, M, Y, K float64
	// Zero is true only when gs printed exactly 0 for all four channels.
	Zero bool
}

var (
	coverageLine = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s+(\d+(?:\.\d+)?)\s+(\d+(?:\.\d+)?)\s+(\d+(?:\.\d+)?)\s+CMYK\s+OK\s*$`)
	pageLine     = regexp.MustCompile(`^\s*Page\s+(\d+)\s*$`)
)

// ParseInkCoverage reads inkcov device output. Pages are numbered from the
// optional "Page N" headers gs prints without -q, otherwise sequentially.
// Lines that are neither are ignored.
func ParseInkCoverage(out []byte) []PageCoverage {
	var pages []PageCoverage
	next := 1
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if m := pageLine.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				next = n
			}
			continue
		}
		m := coverageLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		var v [4]float64
		zero := true
		for i := 0; i < 4; i++ {
			f, err := strconv.ParseFloat(m[i+1], 64)
			if err != nil {
				f = 1
			}
			v[i] = f
			if f != 0 {
				zero = false
			}
		}
		pages = append(pages, PageCoverage{Page: next, C: v[0], M: v[1], Y: v[2], K: v[3], Zero: zero})
		next++
	}
	return pages
}
