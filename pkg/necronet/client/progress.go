package client

import (
	"io"
	"math"
)

// ProgressFunc receives upload progress as a whole percentage.
type ProgressFunc func(percent int)

// progressReader wraps the request body and reports the share of total
// bytes consumed by the transport. Repeated percentages are suppressed.
type progressReader struct {
	reader   io.Reader
	total    int64
	read     int64
	last     int
	callback ProgressFunc
}

func newProgressReader(r io.Reader, total int64, fn ProgressFunc) io.Reader {
	if fn == nil || total <= 0 {
		return r
	}
	return &progressReader{reader: r, total: total, last: -1, callback: fn}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		percent := percentOf(pr.read, pr.total)
		if percent != pr.last {
			pr.last = percent
			pr.callback(percent)
		}
	}
	return n, err
}

// percentOf returns round(loaded/total*100) clamped to 0..100.
func percentOf(loaded, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(loaded) / float64(total) * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
