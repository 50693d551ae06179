package emitter

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/necocen/necoboard/hid"
)

// Report IDs prefixed to every report written by a WriterTransport.
const (
	ReportIDKeyboard byte = 0x01
	ReportIDConsumer byte = 0x02
)

// Encoding selects the keyboard report layout written by a WriterTransport.
type Encoding uint8

const (
	EncodingBoot Encoding = iota
	EncodingNKRO
	EncodingWire
)

func (e Encoding) String() string {
	switch e {
	case EncodingBoot:
		return "boot"
	case EncodingNKRO:
		return "nkro"
	case EncodingWire:
		return "wire"
	default:
		return fmt.Sprintf("Encoding(%d)", uint8(e))
	}
}

// ParseEncoding maps "boot", "nkro" and "wire".
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "boot", "":
		return EncodingBoot, nil
	case "nkro":
		return EncodingNKRO, nil
	case "wire":
		return EncodingWire, nil
	default:
		return 0, fmt.Errorf("unknown report encoding %q", s)
	}
}

// KeyboardBuilder wraps a keyboard report in the builder of an encoding.
func KeyboardBuilder(r hid.KeyboardReport, enc Encoding) hid.ReportBuilder {
	switch enc {
	case EncodingNKRO:
		return hid.NKROReport{KeyboardReport: r}
	case EncodingWire:
		return hid.WireReport{KeyboardReport: r}
	default:
		return r
	}
}

// EncodeKeyboard encodes a keyboard report.
func EncodeKeyboard(r hid.KeyboardReport, enc Encoding) []byte {
	return KeyboardBuilder(r, enc).BuildReport()
}

// WriterTransport writes each report, prefixed with its report ID, to an
// io.Writer. Wire-encoded keyboard reports are self-delimiting; boot and
// NKRO reports have fixed sizes.
type WriterTransport struct {
	mu  sync.Mutex
	w   io.Writer
	enc Encoding
	// OnWrite, when set, sees every payload that was written.
	OnWrite func(stream string, data []byte)
}

func NewWriterTransport(w io.Writer, enc Encoding) *WriterTransport {
	return &WriterTransport{w: w, enc: enc}
}

func (t *WriterTransport) write(stream string, id byte, rb hid.ReportBuilder) error {
	payload := rb.BuildReport()
	buf := make([]byte, 0, 1+len(payload))
	buf = append(buf, id)
	buf = append(buf, payload...)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(buf); err != nil {
		return err
	}
	if t.OnWrite != nil {
		t.OnWrite(stream, buf)
	}
	return nil
}

func (t *WriterTransport) SendKeyboard(r hid.KeyboardReport) error {
	return t.write("KBD", ReportIDKeyboard, KeyboardBuilder(r, t.enc))
}

func (t *WriterTransport) SendConsumer(r hid.ConsumerReport) error {
	return t.write("CON", ReportIDConsumer, r)
}

// Multi fans reports out to several transports. Every transport is tried
// and the failures are joined.
type Multi []Transport

func (m Multi) SendKeyboard(r hid.KeyboardReport) error {
	var errs []error
	for _, t := range m {
		if err := t.SendKeyboard(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) SendConsumer(r hid.ConsumerReport) error {
	var errs []error
	for _, t := range m {
		if err := t.SendConsumer(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard accepts and drops every report.
var Discard Transport = discard{}

type discard struct{}

func (discard) SendKeyboard(hid.KeyboardReport) error { return nil }
func (discard) SendConsumer(hid.ConsumerReport) error { return nil }
