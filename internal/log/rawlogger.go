package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// RawLogger dumps outgoing HID reports.
type RawLogger interface {
	Log(stream string, data []byte)
}

type rawLogger struct {
	w   io.Writer
	mu  sync.Mutex
	now func() time.Time
}

// NewRaw creates a RawLogger writing to w. A nil writer discards everything.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w, now: time.Now}
}

// Log writes one line with a timestamp, the stream name and a hex dump.
func (r *rawLogger) Log(stream string, data []byte) {
	if r.w == nil || len(data) == 0 {
		return
	}

	const hexdigits = "0123456789abcdef"
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %d bytes:", r.now().Format("15:04:05.000"), stream, len(data))
	for _, v := range data {
		b.WriteByte(' ')
		b.WriteByte(hexdigits[v>>4])
		b.WriteByte(hexdigits[v&0x0f])
	}
	b.WriteByte('\n')

	r.mu.Lock()
	_, _ = io.WriteString(r.w, b.String())
	r.mu.Unlock()
}
