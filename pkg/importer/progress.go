package importer

import (
	"fmt"
	"io"
)

// ProgressCallback receives import progress notifications. Call fires during
// the record loop, Finish exactly once at the end. Both are purely
// observational and must not affect import correctness.
type ProgressCallback interface {
	Call(bytesWritten, recordsWritten int64)
	Finish(bytesWritten, recordsWritten int64)
}

// defaultProgressCallback prints a human-readable line every interval bytes
// of compressed output, and once at completion.
type defaultProgressCallback struct {
	interval int64
	next     int64
	out      io.Writer
}

func newDefaultProgressCallback(interval int64, out io.Writer) *defaultProgressCallback {
	return &defaultProgressCallback{interval: interval, next: interval, out: out}
}

func (p *defaultProgressCallback) Call(bytesWritten, recordsWritten int64) {
	// Report once per interval of flushed compressed output
	if bytesWritten < p.next {
		return
	}
	fmt.Fprintf(p.out, "Wrote %dMB, %d records\n", bytesWritten/1000/1000, recordsWritten)
	p.next += p.interval
}

func (p *defaultProgressCallback) Finish(bytesWritten, recordsWritten int64) {
	fmt.Fprintf(p.out, "Done, wrote %dMB, %d records\n", bytesWritten/1000/1000, recordsWritten)
}
