// Package hid holds the USB HID usage tables and the report encodings the
// keyboard hands to its transport.
package hid

import (
	"encoding/binary"
	"io"
)

// Report sizes in bytes.
const (
	BootReportSize     = 8
	NKROReportSize     = 34
	ConsumerReportSize = 2
	BootKeySlots       = 6
)

// ReportBuilder is implemented by reports that encode to a fixed USB payload.
type ReportBuilder interface {
	BuildReport() []byte
}

// KeyboardReport is the keyboard state of one tick: the modifier bitset and
// the pressed non-modifier usages in press order.
type KeyboardReport struct {
	Modifiers uint8 // bit 0-7: LCtrl, LShift, LAlt, LGui, RCtrl, RShift, RAlt, RGui
	Keys      []uint8
}

// Equal reports whether two reports carry the same state.
func (r KeyboardReport) Equal(o KeyboardReport) bool {
	if r.Modifiers != o.Modifiers || len(r.Keys) != len(o.Keys) {
		return false
	}
	for i := range r.Keys {
		if r.Keys[i] != o.Keys[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not share the key slice.
func (r KeyboardReport) Clone() KeyboardReport {
	return KeyboardReport{Modifiers: r.Modifiers, Keys: append([]uint8(nil), r.Keys...)}
}

// BuildReport encodes the boot-protocol keyboard report.
//
// Report layout (8 bytes):
//
//	Byte 0: Modifiers (8 bits)
//	Byte 1: Reserved (0x00)
//	Bytes 2-7: Key usages, zero padded
//
// Keys beyond the six slots are not encoded; the emitter applies the
// rollover policy before a report gets here.
func (r KeyboardReport) BuildReport() []byte {
	b := make([]byte, BootReportSize)
	b[0] = r.Modifiers
	b[1] = 0x00 // Reserved
	for i := 0; i < len(r.Keys) && i < BootKeySlots; i++ {
		b[2+i] = r.Keys[i]
	}
	return b
}

// NKROReport wraps a KeyboardReport for the 256-bit bitmap encoding.
type NKROReport struct {
	KeyboardReport
}

// BuildReport encodes the report as a 34-byte N-key rollover bitmap.
//
// Report layout (34 bytes):
//
//	Byte 0: Modifiers (8 bits)
//	Byte 1: Reserved (0x00)
//	Bytes 2-33: Key bitmap (256 bits, 32 bytes)
func (r NKROReport) BuildReport() []byte {
	b := make([]byte, NKROReportSize)
	b[0] = r.Modifiers
	for _, key := range r.Keys {
		b[2+key/8] |= 1 << (key % 8)
	}
	return b
}

// MarshalBinary encodes the report to the variable-length wire format.
//
// Wire format:
//
//	Byte 0: Modifiers
//	Byte 1: Key count
//	Bytes 2+: Key codes (HID usage codes of pressed keys)
func (r *KeyboardReport) MarshalBinary() ([]byte, error) {
	b := make([]byte, 2+len(r.Keys))
	b[0] = r.Modifiers
	b[1] = uint8(len(r.Keys))
	copy(b[2:], r.Keys)
	return b, nil
}

// WireReport wraps a KeyboardReport for the variable-length wire encoding.
type WireReport struct {
	KeyboardReport
}

// BuildReport encodes the report in the wire format of MarshalBinary.
func (r WireReport) BuildReport() []byte {
	b, _ := r.MarshalBinary()
	return b
}

// UnmarshalBinary decodes the variable-length wire format.
func (r *KeyboardReport) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return io.ErrUnexpectedEOF
	}
	keyCount := int(data[1])
	if len(data) < 2+keyCount {
		return io.ErrUnexpectedEOF
	}
	r.Modifiers = data[0]
	r.Keys = append(r.Keys[:0], data[2:2+keyCount]...)
	return nil
}

// ConsumerReport carries the single active consumer-page usage, or 0.
type ConsumerReport struct {
	Usage uint16
}

// BuildReport encodes the usage as 16-bit little endian.
func (r ConsumerReport) BuildReport() []byte {
	b := make([]byte, ConsumerReportSize)
	binary.LittleEndian.PutUint16(b, r.Usage)
	return b
}

var (
	_ ReportBuilder = KeyboardReport{}
	_ ReportBuilder = NKROReport{}
	_ ReportBuilder = WireReport{}
	_ ReportBuilder = ConsumerReport{}
)

// UnmarshalBinary decodes a 2-byte consumer report.
func (r *ConsumerReport) UnmarshalBinary(data []byte) error {
	if len(data) < ConsumerReportSize {
		return io.ErrUnexpectedEOF
	}
	r.Usage = binary.LittleEndian.Uint16(data)
	return nil
}
