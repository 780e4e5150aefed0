package httpdl

import (
	"io"
	"time"

	"github.com/kythours/modelvol/internal/downloader"
)

// progressWriter counts bytes and emits at most one progress event per
// interval.
type progressWriter struct {
	w     io.Writer
	total int64
	every time.Duration
	now   func() time.Time
	emit  func(downloader.Progress)

	written int64
	start   time.Time
	last    time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if t := p.now(); t.Sub(p.last) >= p.every {
		p.last = t
		var speed int64
		if secs := t.Sub(p.start).Seconds(); secs > 0 {
			speed = int64(float64(p.written) / secs)
		}
		total := p.total
		if total < 0 {
			total = 0
		}
		p.emit(downloader.Progress{Completed: p.written, Total: total, Speed: speed})
	}
	return n, err
}
