// Package sequencer turns debounced transitions into an ordered stream of
// key events, applying layer keys to the layer stack as it goes.
//
// Within one tick all releases are handled before any press, each group in
// row-major order. Presses are resolved in rounds: every pending press that
// resolves to a layer key is applied first, and resolution repeats until no
// new layer key appears. The remaining presses are then resolved against the
// final layer state and frozen. This makes a layer key and a key on that
// layer that land on the same tick behave as if the layer key came first.
package sequencer

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/necocen/necoboard/debounce"
	"github.com/necocen/necoboard/layer"
	"github.com/necocen/necoboard/layout"
	"github.com/necocen/necoboard/matrix"
)

// Kind is the direction of an event.
type Kind uint8

const (
	Press Kind = iota + 1
	Release
)

func (k Kind) String() string {
	switch k {
	case Press:
		return "press"
	case Release:
		return "release"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Event is a resolved key press or release.
type Event struct {
	Cell matrix.Cell
	Key  layout.Key
	Kind Kind
	Tick uint64
}

// Sequencer owns the held set and drives the layer stack.
type Sequencer struct {
	resolver *layer.Resolver
	stack    *layer.Stack
	held     *HeldSet
	seq      uint64
	logger   *slog.Logger

	violations     uint64
	layerOverflows uint64

	releases []debounce.Change
	presses  []debounce.Change
	done     []bool
}

func New(resolver *layer.Resolver, stack *layer.Stack, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		resolver: resolver,
		stack:    stack,
		held:     NewHeldSet(resolver.Table().Grid()),
		logger:   logger,
	}
}

// Held returns the live held set.
func (s *Sequencer) Held() *HeldSet { return s.held }

// Stack returns the layer stack the sequencer drives.
func (s *Sequencer) Stack() *layer.Stack { return s.stack }

// Violations returns the number of dropped transitions that contradicted the
// held set: presses of held cells and releases of cells that were not held.
func (s *Sequencer) Violations() uint64 { return s.violations }

// LayerOverflows returns the number of layer activations refused by the
// stack bound.
func (s *Sequencer) LayerOverflows() uint64 { return s.layerOverflows }

// Reset clears the held set and the layer stack without emitting events.
func (s *Sequencer) Reset() {
	s.held.Clear()
	s.stack.Reset()
}

func rowMajor(a, b debounce.Change) int {
	if a.Cell.Row != b.Cell.Row {
		return int(a.Cell.Row) - int(b.Cell.Row)
	}
	return int(a.Cell.Col) - int(b.Cell.Col)
}

// Process applies one tick worth of transitions and returns the resulting
// events. Layer keys update the stack but produce no events, and neither do
// no-op keys.
func (s *Sequencer) Process(changes []debounce.Change, tick uint64) []Event {
	s.releases, s.presses = s.releases[:0], s.presses[:0]
	for _, ch := range changes {
		switch ch.Transition {
		case debounce.Release:
			s.releases = append(s.releases, ch)
		case debounce.Press:
			s.presses = append(s.presses, ch)
		}
	}
	slices.SortStableFunc(s.releases, rowMajor)
	slices.SortStableFunc(s.presses, rowMajor)

	var events []Event
	for _, ch := range s.releases {
		if ev, ok := s.release(ch.Cell, tick); ok {
			events = append(events, ev)
		}
	}

	s.done = slices.Grow(s.done[:0], len(s.presses))[:len(s.presses)]
	for i, ch := range s.presses {
		s.done[i] = false
		if s.held.Contains(ch.Cell) {
			s.violation("Press of a held cell dropped", ch.Cell, tick)
			s.done[i] = true
		}
	}

	for applied := true; applied; {
		applied = false
		for i, ch := range s.presses {
			if s.done[i] {
				continue
			}
			k := s.resolver.Resolve(s.stack, ch.Cell)
			if !k.IsLayerKey() {
				continue
			}
			s.seq++
			s.held.put(ch.Cell, Held{Key: k, Seq: s.seq, Tick: tick, Applied: s.applyLayer(k, ch.Cell)})
			s.done[i] = true
			applied = true
		}
	}

	for i, ch := range s.presses {
		if s.done[i] {
			continue
		}
		k := s.resolver.Resolve(s.stack, ch.Cell)
		s.seq++
		s.held.put(ch.Cell, Held{Key: k, Seq: s.seq, Tick: tick})
		if k.Kind == layout.KindNone {
			continue
		}
		events = append(events, Event{Cell: ch.Cell, Key: k, Kind: Press, Tick: tick})
	}
	return events
}

func (s *Sequencer) release(c matrix.Cell, tick uint64) (Event, bool) {
	h, ok := s.held.Get(c)
	if !ok {
		s.violation("Release of an unheld cell dropped", c, tick)
		return Event{}, false
	}
	s.held.delete(c)
	switch h.Key.Kind {
	case layout.KindLayerHold:
		if h.Applied {
			res := s.stack.Pop(h.Key.Layer)
			s.logger.Debug("Layer hold released", "layer", h.Key.Layer, "result", res, "stack", s.stack)
		}
		return Event{}, false
	case layout.KindLayerToggle, layout.KindNone:
		return Event{}, false
	}
	return Event{Cell: c, Key: h.Key, Kind: Release, Tick: tick}, true
}

func (s *Sequencer) applyLayer(k layout.Key, c matrix.Cell) bool {
	var res layer.Result
	if k.Kind == layout.KindLayerHold {
		res = s.stack.Push(k.Layer)
	} else {
		res = s.stack.Toggle(k.Layer)
	}
	if res == layer.Overflow {
		s.layerOverflows++
		s.logger.Warn("Layer stack full, activation ignored", "cell", c, "layer", k.Layer, "depth", s.stack.Depth())
		return false
	}
	s.logger.Debug("Layer key pressed", "cell", c, "key", k, "result", res, "stack", s.stack)
	return true
}

func (s *Sequencer) violation(msg string, c matrix.Cell, tick uint64) {
	s.violations++
	s.logger.Warn(msg, "cell", c, "tick", tick, "violations", s.violations)
}
