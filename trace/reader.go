package trace

import (
	"errors"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/necocen/necoboard/matrix"
)

// Filter selects records. Zero fields match everything.
type Filter struct {
	Session string
	Type    *RecordType
	Cell    *matrix.Cell
	// FromTick and ToTick bound the tick range, inclusive. ToTick 0 is
	// unbounded.
	FromTick uint64
	ToTick   uint64
}

func (f *Filter) matches(r Record) bool {
	if f.Session != "" && r.Session != f.Session {
		return false
	}
	if f.Type != nil && r.Type != *f.Type {
		return false
	}
	if f.Cell != nil && (r.Event == nil || r.Event.Cell() != *f.Cell) {
		return false
	}
	if r.Tick < f.FromTick {
		return false
	}
	if f.ToTick != 0 && r.Tick > f.ToTick {
		return false
	}
	return true
}

// Reader streams records from a trace.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader reads records matching filter from r.
func NewReader(r io.Reader, filter Filter) *Reader {
	return &Reader{decoder: newDecoder(r), filter: filter}
}

// Open reads records matching filter from a trace file.
func Open(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rd := NewReader(f, filter)
	rd.closer = f
	return rd, nil
}

// Next returns the next matching record, or io.EOF at the end of the trace.
func (r *Reader) Next() (Record, error) {
	for {
		var rec Record
		if err := r.decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, err
		}
		if r.filter.matches(rec) {
			return rec, nil
		}
	}
}

// All drains the reader.
func (r *Reader) All() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
