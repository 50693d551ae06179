// Package layer tracks which layers are active and resolves a cell to the
// logical key it produces under the current layer state.
package layer

import (
	"fmt"
	"strings"

	"github.com/necocen/necoboard/layout"
)

// DefaultDepth bounds the stack, base layer included.
const DefaultDepth = 4

// Result reports the effect of a stack operation.
type Result uint8

const (
	// Unchanged means the set of active layers did not change.
	Unchanged Result = iota
	Activated
	Deactivated
	// Overflow means a push was refused because the stack is full.
	Overflow
)

func (r Result) String() string {
	switch r {
	case Unchanged:
		return "unchanged"
	case Activated:
		return "activated"
	case Deactivated:
		return "deactivated"
	case Overflow:
		return "overflow"
	default:
		return fmt.Sprintf("Result(%d)", uint8(r))
	}
}

type entry struct {
	id      layout.LayerID
	holds   int
	toggled bool
}

// Stack is the ordered set of active layers. The base layer sits at the
// bottom and is never removed; a layer appears at most once. A layer stays
// active while it has outstanding holds or is toggled on. Re-activating an
// already active layer does not move it.
type Stack struct {
	entries []entry
	depth   int
}

// NewStack creates a stack holding at most depth layers including the base.
// Values below 1 select DefaultDepth.
func NewStack(depth int) *Stack {
	if depth < 1 {
		depth = DefaultDepth
	}
	s := &Stack{depth: depth, entries: make([]entry, 1, depth)}
	s.entries[0] = entry{id: layout.Base}
	return s
}

// Depth returns the configured bound.
func (s *Stack) Depth() int { return s.depth }

// Len returns the number of active layers including the base.
func (s *Stack) Len() int { return len(s.entries) }

func (s *Stack) find(id layout.LayerID) int {
	for i := range s.entries {
		if s.entries[i].id == id {
			return i
		}
	}
	return -1
}

// Push adds a hold on a layer.
func (s *Stack) Push(id layout.LayerID) Result {
	if id == layout.Base {
		return Unchanged
	}
	if i := s.find(id); i >= 0 {
		s.entries[i].holds++
		return Unchanged
	}
	if len(s.entries) >= s.depth {
		return Overflow
	}
	s.entries = append(s.entries, entry{id: id, holds: 1})
	return Activated
}

// Pop drops one hold on a layer. The layer is removed when no holds remain
// and it is not toggled on.
func (s *Stack) Pop(id layout.LayerID) Result {
	i := s.find(id)
	if i <= 0 {
		return Unchanged
	}
	e := &s.entries[i]
	if e.holds > 0 {
		e.holds--
	}
	if e.holds == 0 && !e.toggled {
		s.remove(i)
		return Deactivated
	}
	return Unchanged
}

// Toggle flips the persistent toggle of a layer. Turning the toggle on for
// an inactive layer pushes it; turning it off removes the layer unless it is
// still held.
func (s *Stack) Toggle(id layout.LayerID) Result {
	if id == layout.Base {
		return Unchanged
	}
	i := s.find(id)
	if i < 0 {
		if len(s.entries) >= s.depth {
			return Overflow
		}
		s.entries = append(s.entries, entry{id: id, toggled: true})
		return Activated
	}
	e := &s.entries[i]
	e.toggled = !e.toggled
	if !e.toggled && e.holds == 0 {
		s.remove(i)
		return Deactivated
	}
	return Unchanged
}

func (s *Stack) remove(i int) {
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
}

// Active reports whether a layer is on the stack.
func (s *Stack) Active(id layout.LayerID) bool { return s.find(id) >= 0 }

// Toggled reports whether a layer is toggled on.
func (s *Stack) Toggled(id layout.LayerID) bool {
	i := s.find(id)
	return i >= 0 && s.entries[i].toggled
}

// Layers returns the active layers from bottom (base) to top.
func (s *Stack) Layers() []layout.LayerID {
	out := make([]layout.LayerID, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.id
	}
	return out
}

// Top returns the most recently activated layer.
func (s *Stack) Top() layout.LayerID { return s.entries[len(s.entries)-1].id }

// Reset drops every layer but the base.
func (s *Stack) Reset() { s.entries = s.entries[:1] }

func (s *Stack) String() string {
	parts := make([]string, len(s.entries))
	for i, e := range s.entries {
		parts[i] = fmt.Sprint(e.id)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
