package trace

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/necocen/necoboard/layout"
	"github.com/necocen/necoboard/scan"
)

// Recorder writes trace records for every scan tick it observes. It is safe
// for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	w       io.Writer
	closer  io.Closer
	encoder *cbor.Encoder
	session string
	table   *layout.Table
	now     func() time.Time
	closed  bool
	err     error
	written uint64

	readFailing bool
}

// NewRecorder creates a recorder writing to w. The table, when non-nil, is
// used to store layout tokens next to each key.
func NewRecorder(w io.Writer, table *layout.Table) *Recorder {
	return &Recorder{
		w:       w,
		encoder: newEncoder(w),
		session: uuid.New().String(),
		table:   table,
		now:     time.Now,
	}
}

// Create opens path for appending and records into it.
func Create(path string, table *layout.Table) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	r := NewRecorder(f, table)
	r.closer = f
	return r, nil
}

// Session returns the session ID stamped on every record.
func (r *Recorder) Session() string { return r.session }

// Written returns the number of records written.
func (r *Recorder) Written() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Write stamps and writes a record.
func (r *Recorder) Write(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeLocked(rec)
}

func (r *Recorder) writeLocked(rec Record) error {
	if r.closed {
		return errors.New("trace recorder closed")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}
	rec.Session = r.session
	if err := r.encoder.Encode(rec); err != nil {
		if r.err == nil {
			r.err = err
		}
		return err
	}
	r.written++
	return nil
}

// Observe implements scan.Observer. Read failures are recorded once per run
// of consecutive failures.
func (r *Recorder) Observe(rep scan.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rep.ReadErr != nil && !r.readFailing {
		_ = r.writeLocked(Record{Tick: rep.Tick, Type: TypeFault, Fault: &FaultData{Source: "read", Message: rep.ReadErr.Error()}})
	}
	r.readFailing = rep.ReadErr != nil

	for _, ev := range rep.Events {
		data := &EventData{Kind: ev.Kind, Row: ev.Cell.Row, Col: ev.Cell.Col, Key: keyData(ev.Key)}
		if r.table != nil {
			data.Token = r.table.Token(ev.Key)
		}
		_ = r.writeLocked(Record{Tick: rep.Tick, Type: TypeEvent, Event: data})
	}

	res := rep.Result
	if res.SentKeyboard || res.SentConsumer {
		data := &ReportData{Overflow: res.Overflow, SentConsumer: res.SentConsumer}
		if res.SentKeyboard {
			data.Keyboard, _ = res.Keyboard.MarshalBinary()
		}
		if res.SentConsumer {
			data.Consumer = res.Consumer.Usage
		}
		_ = r.writeLocked(Record{Tick: rep.Tick, Type: TypeReport, Report: data})
	}

	if rep.SendErr != nil {
		_ = r.writeLocked(Record{Tick: rep.Tick, Type: TypeFault, Fault: &FaultData{Source: "send", Message: rep.SendErr.Error()}})
	}
}

// Close closes the underlying file when the recorder owns one. Calling Close
// more than once is safe.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

var _ scan.Observer = (*Recorder)(nil)
