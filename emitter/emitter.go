// Package emitter coalesces the held keys of a tick into HID reports and
// hands them to a transport.
package emitter

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/necocen/necoboard/hid"
	"github.com/necocen/necoboard/layout"
	"github.com/necocen/necoboard/sequencer"
)

// OverflowPolicy decides what is reported when more keys are held than the
// report has slots for.
type OverflowPolicy uint8

const (
	// DropNewest keeps the earliest pressed keys.
	DropNewest OverflowPolicy = iota
	// ErrorRollover fills every slot with the HID ErrorRollOver usage.
	ErrorRollover
)

func (p OverflowPolicy) String() string {
	if p == ErrorRollover {
		return "error-rollover"
	}
	return "drop-newest"
}

// ParseOverflowPolicy maps "drop-newest" and "error-rollover".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "drop-newest", "":
		return DropNewest, nil
	case "error-rollover":
		return ErrorRollover, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// ResendPolicy decides whether unchanged reports are sent again.
type ResendPolicy uint8

const (
	// OnChange sends a report only when it differs from the last one sent.
	OnChange ResendPolicy = iota
	// Always sends both reports every tick.
	Always
)

func (p ResendPolicy) String() string {
	if p == Always {
		return "always"
	}
	return "on-change"
}

// ParseResendPolicy maps "on-change" and "always".
func ParseResendPolicy(s string) (ResendPolicy, error) {
	switch s {
	case "on-change", "":
		return OnChange, nil
	case "always":
		return Always, nil
	default:
		return 0, fmt.Errorf("unknown resend policy %q", s)
	}
}

// DefaultRollover is the boot keyboard slot count.
const DefaultRollover = hid.BootKeySlots

// Config configures an Emitter.
type Config struct {
	Rollover int
	Overflow OverflowPolicy
	Resend   ResendPolicy
}

// Transport delivers reports to the host.
type Transport interface {
	SendKeyboard(r hid.KeyboardReport) error
	SendConsumer(r hid.ConsumerReport) error
}

// Result describes what one Emit call built and sent.
type Result struct {
	Keyboard     hid.KeyboardReport
	Consumer     hid.ConsumerReport
	Overflow     bool
	SentKeyboard bool
	SentConsumer bool
}

// Emitter builds reports from the held set.
type Emitter struct {
	cfg       Config
	transport Transport
	logger    *slog.Logger

	lastKeyboard hid.KeyboardReport
	lastConsumer hid.ConsumerReport
	sentKeyboard bool
	sentConsumer bool
	overflows    uint64

	entries []sequencer.Entry
	basic   []layout.Key
}

func New(cfg Config, transport Transport, logger *slog.Logger) *Emitter {
	if cfg.Rollover < 1 {
		cfg.Rollover = DefaultRollover
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{cfg: cfg, transport: transport, logger: logger}
}

// Config returns the effective configuration.
func (e *Emitter) Config() Config { return e.cfg }

// Overflows returns how many built reports exceeded the rollover limit.
func (e *Emitter) Overflows() uint64 { return e.overflows }

// Reset forgets the last sent reports so the next Emit sends both.
func (e *Emitter) Reset() {
	e.lastKeyboard, e.lastConsumer = hid.KeyboardReport{}, hid.ConsumerReport{}
	e.sentKeyboard, e.sentConsumer = false, false
}

// Build derives the reports for the current held set without sending them.
func (e *Emitter) Build(held *sequencer.HeldSet) (hid.KeyboardReport, hid.ConsumerReport, bool) {
	e.entries = held.AppendBySeq(e.entries[:0])
	e.basic = e.basic[:0]

	var kb hid.KeyboardReport
	var cr hid.ConsumerReport
	for _, ent := range e.entries {
		switch ent.Key.Kind {
		case layout.KindModifier:
			kb.Modifiers |= ent.Key.ModifierBits()
		case layout.KindBasic:
			if !containsUsage(e.basic, ent.Key.Usage()) {
				e.basic = append(e.basic, ent.Key)
			}
		case layout.KindMedia:
			// Entries are in press order, so the last one wins.
			cr.Usage = ent.Key.Code
		}
	}

	overflow := len(e.basic) > e.cfg.Rollover
	if overflow && e.cfg.Overflow == ErrorRollover {
		kb.Keys = make([]uint8, e.cfg.Rollover)
		for i := range kb.Keys {
			kb.Keys[i] = hid.ErrorRollOver
		}
		return kb, cr, true
	}
	if overflow {
		e.basic = e.basic[:e.cfg.Rollover]
	}
	kb.Keys = make([]uint8, 0, len(e.basic))
	for _, k := range e.basic {
		kb.Modifiers |= k.ModifierBits()
		kb.Keys = append(kb.Keys, k.Usage())
	}
	return kb, cr, overflow
}

func containsUsage(keys []layout.Key, usage uint8) bool {
	for _, k := range keys {
		if k.Usage() == usage {
			return true
		}
	}
	return false
}

// Emit builds the reports for the held set and sends the ones the resend
// policy asks for. Transport failures are returned joined; a report that
// failed to send is retried on the next call.
func (e *Emitter) Emit(events []sequencer.Event, held *sequencer.HeldSet) (Result, error) {
	for _, ev := range events {
		e.logger.Debug("Key event", "kind", ev.Kind, "cell", ev.Cell, "key", ev.Key, "tick", ev.Tick)
	}

	kb, cr, overflow := e.Build(held)
	res := Result{Keyboard: kb, Consumer: cr, Overflow: overflow}
	if overflow {
		e.overflows++
		e.logger.Debug("Report overflow", "policy", e.cfg.Overflow, "rollover", e.cfg.Rollover, "held", held.Len())
	}
	if e.transport == nil {
		return res, nil
	}

	var errs []error
	if e.cfg.Resend == Always || !e.sentKeyboard || !kb.Equal(e.lastKeyboard) {
		if err := e.transport.SendKeyboard(kb); err != nil {
			errs = append(errs, fmt.Errorf("send keyboard report: %w", err))
		} else {
			e.lastKeyboard, e.sentKeyboard = kb.Clone(), true
			res.SentKeyboard = true
		}
	}
	if e.cfg.Resend == Always || !e.sentConsumer || cr != e.lastConsumer {
		if err := e.transport.SendConsumer(cr); err != nil {
			errs = append(errs, fmt.Errorf("send consumer report: %w", err))
		} else {
			e.lastConsumer, e.sentConsumer = cr, true
			res.SentConsumer = true
		}
	}
	return res, errors.Join(errs...)
}
