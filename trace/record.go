// Package trace records key events and sent reports as a stream of CBOR
// records and reads them back for inspection.
package trace

import (
	"fmt"
	"strings"
	"time"

	"github.com/necocen/necoboard/hid"
	"github.com/necocen/necoboard/layout"
	"github.com/necocen/necoboard/matrix"
	"github.com/necocen/necoboard/sequencer"
)

// Record is one trace entry. CBOR encoding uses integer keys for compactness.
type Record struct {
	Timestamp time.Time  `cbor:"1,keyasint"`
	Session   string     `cbor:"2,keyasint"`
	Tick      uint64     `cbor:"3,keyasint"`
	Type      RecordType `cbor:"4,keyasint"`

	Event  *EventData  `cbor:"5,keyasint,omitempty"`
	Report *ReportData `cbor:"6,keyasint,omitempty"`
	Fault  *FaultData  `cbor:"7,keyasint,omitempty"`
}

// RecordType classifies a record.
type RecordType uint8

const (
	TypeEvent  RecordType = 0
	TypeReport RecordType = 1
	TypeFault  RecordType = 2
)

func (t RecordType) String() string {
	switch t {
	case TypeEvent:
		return "EVENT"
	case TypeReport:
		return "REPORT"
	case TypeFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// ParseRecordType maps "event", "report" and "fault".
func ParseRecordType(s string) (RecordType, error) {
	switch strings.ToLower(s) {
	case "event":
		return TypeEvent, nil
	case "report":
		return TypeReport, nil
	case "fault":
		return TypeFault, nil
	default:
		return 0, fmt.Errorf("unknown record type %q", s)
	}
}

// EventData is a key press or release.
type EventData struct {
	Kind  sequencer.Kind `cbor:"1,keyasint"`
	Row   uint8          `cbor:"2,keyasint"`
	Col   uint8          `cbor:"3,keyasint"`
	Key   KeyData        `cbor:"4,keyasint"`
	Token string         `cbor:"5,keyasint,omitempty"`
}

// Cell returns the matrix cell of the event.
func (e *EventData) Cell() matrix.Cell { return matrix.Cell{Row: e.Row, Col: e.Col} }

// KeyData mirrors layout.Key.
type KeyData struct {
	Kind  layout.Kind `cbor:"1,keyasint"`
	Code  uint16      `cbor:"2,keyasint,omitempty"`
	Mods  uint8       `cbor:"3,keyasint,omitempty"`
	Layer uint8       `cbor:"4,keyasint,omitempty"`
}

func keyData(k layout.Key) KeyData {
	return KeyData{Kind: k.Kind, Code: k.Code, Mods: k.Mods, Layer: uint8(k.Layer)}
}

// Key converts back to a layout key.
func (k KeyData) Key() layout.Key {
	return layout.Key{Kind: k.Kind, Code: k.Code, Mods: k.Mods, Layer: layout.LayerID(k.Layer)}
}

// ReportData holds the reports sent on a tick. Keyboard is the wire
// encoding of the keyboard report and is empty when it was not sent.
type ReportData struct {
	Keyboard []byte `cbor:"1,keyasint,omitempty"`
	Consumer uint16 `cbor:"2,keyasint,omitempty"`
	Overflow bool   `cbor:"3,keyasint,omitempty"`
	// SentConsumer distinguishes a sent zero consumer report from none.
	SentConsumer bool `cbor:"4,keyasint,omitempty"`
}

// KeyboardReport decodes the keyboard payload.
func (r *ReportData) KeyboardReport() (hid.KeyboardReport, bool) {
	var kb hid.KeyboardReport
	if len(r.Keyboard) == 0 || kb.UnmarshalBinary(r.Keyboard) != nil {
		return hid.KeyboardReport{}, false
	}
	return kb, true
}

// FaultData is a read or transport failure.
type FaultData struct {
	Source  string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

func (r Record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s tick=%d %-6s", r.Timestamp.Format("15:04:05.000"), r.Tick, r.Type)
	switch {
	case r.Event != nil:
		tok := r.Event.Token
		if tok == "" {
			tok = r.Event.Key.Key().String()
		}
		fmt.Fprintf(&b, " %-7s %s %s", r.Event.Kind, r.Event.Cell(), tok)
	case r.Report != nil:
		if kb, ok := r.Report.KeyboardReport(); ok {
			names := make([]string, len(kb.Keys))
			for i, k := range kb.Keys {
				names[i] = hid.KeyName(k)
			}
			fmt.Fprintf(&b, " mods=0x%02x keys=[%s]", kb.Modifiers, strings.Join(names, " "))
		}
		if r.Report.SentConsumer {
			fmt.Fprintf(&b, " consumer=%s", consumerName(r.Report.Consumer))
		}
		if r.Report.Overflow {
			b.WriteString(" overflow")
		}
	case r.Fault != nil:
		fmt.Fprintf(&b, " %s: %s", r.Fault.Source, r.Fault.Message)
	}
	return b.String()
}

func consumerName(u uint16) string {
	if u == 0 {
		return "none"
	}
	return hid.ConsumerName(u)
}
