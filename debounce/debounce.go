// Package debounce filters noisy per-cell activation into stable press and
// release transitions.
//
// Every cell runs the same four-state machine:
//
//	StableReleased --raw on--> PendingPress --held Window ticks--> StablePressed
//	StablePressed --raw off--> PendingRelease --held Window ticks--> StableReleased
//
// A pending state that sees the raw signal return to the stable value drops
// back without reporting anything.
package debounce

import (
	"fmt"
	"log/slog"

	"github.com/necocen/necoboard/matrix"
)

// DefaultWindow is the default number of consecutive ticks a new raw value
// must hold before it is accepted.
const DefaultWindow = 5

// State is the debounce state of one cell.
type State uint8

const (
	StableReleased State = iota
	PendingPress
	StablePressed
	PendingRelease
)

func (s State) String() string {
	switch s {
	case StableReleased:
		return "stable-released"
	case PendingPress:
		return "pending-press"
	case StablePressed:
		return "stable-pressed"
	case PendingRelease:
		return "pending-release"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Transition is a debounced edge.
type Transition uint8

const (
	Press Transition = iota + 1
	Release
)

func (t Transition) String() string {
	switch t {
	case Press:
		return "press"
	case Release:
		return "release"
	default:
		return "none"
	}
}

// InitialPolicy decides what happens to a key that is already active when
// the cell is sampled for the first time after init or Reset.
type InitialPolicy uint8

const (
	// InitialIgnore latches an initially active key silently. It reports only
	// after a genuine release followed by a new press.
	InitialIgnore InitialPolicy = iota
	// InitialAccept treats sustained initial activation as a normal press
	// once the window elapses.
	InitialAccept
)

// ParseInitialPolicy maps the configuration names "ignore" and "accept".
func ParseInitialPolicy(s string) (InitialPolicy, error) {
	switch s {
	case "ignore", "":
		return InitialIgnore, nil
	case "accept":
		return InitialAccept, nil
	default:
		return 0, fmt.Errorf("unknown initial press policy %q", s)
	}
}

func (p InitialPolicy) String() string {
	if p == InitialAccept {
		return "accept"
	}
	return "ignore"
}

// Config configures a Debouncer.
type Config struct {
	Window  int
	Initial InitialPolicy
}

// Change is a transition reported for a specific cell.
type Change struct {
	Cell       matrix.Cell
	Transition Transition
	Tick       uint64
}

type cellState struct {
	state  State
	ticks  int
	seen   bool
	muted  bool
	change uint64 // tick of the last raw change
}

// Debouncer owns the debounce state of every cell in a grid.
type Debouncer struct {
	grid   matrix.Grid
	cfg    Config
	cells  []cellState
	logger *slog.Logger
}

// New returns a Debouncer with all cells stable released.
func New(g matrix.Grid, cfg Config, logger *slog.Logger) *Debouncer {
	if cfg.Window < 1 {
		cfg.Window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		grid:   g,
		cfg:    cfg,
		cells:  make([]cellState, g.Size()),
		logger: logger,
	}
}

// Window returns the configured debounce window in ticks.
func (d *Debouncer) Window() int { return d.cfg.Window }

// Reset returns every cell to StableReleased as on firmware init.
func (d *Debouncer) Reset() {
	for i := range d.cells {
		d.cells[i] = cellState{}
	}
}

// State returns the current state of a cell.
func (d *Debouncer) State(c matrix.Cell) State {
	if !d.grid.Contains(c) {
		return StableReleased
	}
	return d.cells[d.grid.Index(c)].state
}

// Update feeds one raw sample for a cell and returns a transition when one
// completes on this tick.
func (d *Debouncer) Update(c matrix.Cell, raw bool, tick uint64) (Transition, bool) {
	return d.update(c, raw, tick, true)
}

func (d *Debouncer) update(c matrix.Cell, raw bool, tick uint64, sampled bool) (Transition, bool) {
	if !d.grid.Contains(c) {
		return 0, false
	}
	cs := &d.cells[d.grid.Index(c)]

	if !cs.seen {
		// A substituted frame carries no reading, so the startup latch stays armed.
		if !sampled {
			return 0, false
		}
		cs.seen = true
		if raw && d.cfg.Initial == InitialIgnore {
			cs.state = StablePressed
			cs.muted = true
			d.logger.Debug("Latched key active at startup", "cell", c)
			return 0, false
		}
	}

	switch cs.state {
	case StableReleased:
		if raw {
			cs.state, cs.ticks, cs.change = PendingPress, 0, tick
			return d.advance(cs, c, tick)
		}
	case StablePressed:
		if !raw {
			cs.state, cs.ticks, cs.change = PendingRelease, 0, tick
			return d.advance(cs, c, tick)
		}
	case PendingPress:
		if !raw {
			cs.state, cs.ticks = StableReleased, 0
			return 0, false
		}
		return d.advance(cs, c, tick)
	case PendingRelease:
		if raw {
			cs.state, cs.ticks = StablePressed, 0
			return 0, false
		}
		return d.advance(cs, c, tick)
	}
	return 0, false
}

func (d *Debouncer) advance(cs *cellState, c matrix.Cell, tick uint64) (Transition, bool) {
	cs.ticks++
	if cs.ticks < d.cfg.Window {
		return 0, false
	}
	cs.ticks = 0
	if cs.state == PendingPress {
		cs.state = StablePressed
		return Press, true
	}
	cs.state = StableReleased
	if cs.muted {
		cs.muted = false
		d.logger.Debug("Startup latch released", "cell", c, "since", cs.change)
		return 0, false
	}
	return Release, true
}

// Scan feeds a whole frame and returns the completed transitions in
// row-major cell order.
func (d *Debouncer) Scan(f *matrix.Frame, tick uint64) []Change {
	var out []Change
	for i := 0; i < d.grid.Size(); i++ {
		c := d.grid.CellAt(i)
		if tr, ok := d.update(c, f.Get(c), tick, true); ok {
			out = append(out, Change{Cell: c, Transition: tr, Tick: tick})
		}
	}
	return out
}

// ScanReleased feeds an all-released frame standing in for a failed read.
// Cells that have never been sampled are left alone, so a key held since
// power-on is still latched by InitialIgnore once real samples arrive.
func (d *Debouncer) ScanReleased(tick uint64) []Change {
	var out []Change
	for i := 0; i < d.grid.Size(); i++ {
		c := d.grid.CellAt(i)
		if tr, ok := d.update(c, false, tick, false); ok {
			out = append(out, Change{Cell: c, Transition: tr, Tick: tick})
		}
	}
	return out
}
