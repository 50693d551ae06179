package sequencer

import (
	"slices"

	"github.com/necocen/necoboard/layout"
	"github.com/necocen/necoboard/matrix"
)

// Held is the record of a pressed cell. Key is frozen at press time and is
// what the release reports, whatever the layer state is by then.
type Held struct {
	Key  layout.Key
	Seq  uint64
	Tick uint64
	// Applied is set for layer keys whose stack operation took effect, so
	// that the release only undoes what the press did.
	Applied bool
}

// Entry pairs a held record with its cell.
type Entry struct {
	Cell matrix.Cell
	Held
}

// HeldSet maps cells to their held records.
type HeldSet struct {
	grid    matrix.Grid
	entries []Held
	present []bool
	count   int
}

func NewHeldSet(g matrix.Grid) *HeldSet {
	return &HeldSet{
		grid:    g,
		entries: make([]Held, g.Size()),
		present: make([]bool, g.Size()),
	}
}

// Get returns the record of a held cell.
func (h *HeldSet) Get(c matrix.Cell) (Held, bool) {
	if !h.grid.Contains(c) {
		return Held{}, false
	}
	i := h.grid.Index(c)
	return h.entries[i], h.present[i]
}

// Contains reports whether a cell is held.
func (h *HeldSet) Contains(c matrix.Cell) bool {
	_, ok := h.Get(c)
	return ok
}

func (h *HeldSet) put(c matrix.Cell, rec Held) {
	i := h.grid.Index(c)
	if !h.present[i] {
		h.count++
	}
	h.entries[i], h.present[i] = rec, true
}

func (h *HeldSet) delete(c matrix.Cell) {
	i := h.grid.Index(c)
	if h.present[i] {
		h.count--
	}
	h.entries[i], h.present[i] = Held{}, false
}

// Len returns the number of held cells.
func (h *HeldSet) Len() int { return h.count }

// Clear releases every cell without producing events.
func (h *HeldSet) Clear() {
	clear(h.entries)
	clear(h.present)
	h.count = 0
}

// AppendBySeq appends every held entry to dst in press order.
func (h *HeldSet) AppendBySeq(dst []Entry) []Entry {
	start := len(dst)
	for i, ok := range h.present {
		if ok {
			dst = append(dst, Entry{Cell: h.grid.CellAt(i), Held: h.entries[i]})
		}
	}
	slices.SortFunc(dst[start:], func(a, b Entry) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		default:
			return 0
		}
	})
	return dst
}
