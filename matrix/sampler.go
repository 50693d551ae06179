package matrix

import "errors"

// ErrNoData is returned by a Sampler that has no reading for the current tick.
var ErrNoData = errors.New("matrix: no data for tick")

// Frame is the activation state of every cell for one scan tick, stored in
// row-major order.
type Frame struct {
	grid  Grid
	cells []bool
}

// NewFrame returns an all-released frame for the grid.
func NewFrame(g Grid) *Frame {
	return &Frame{grid: g, cells: make([]bool, g.Size())}
}

// Grid returns the frame's dimensions.
func (f *Frame) Grid() Grid { return f.grid }

// Get reports whether the cell is activated. Cells outside the grid read as
// released.
func (f *Frame) Get(c Cell) bool {
	if !f.grid.Contains(c) {
		return false
	}
	return f.cells[f.grid.Index(c)]
}

// Set updates a cell. Cells outside the grid are ignored.
func (f *Frame) Set(c Cell, active bool) {
	if !f.grid.Contains(c) {
		return
	}
	f.cells[f.grid.Index(c)] = active
}

// Clear marks every cell released.
func (f *Frame) Clear() {
	for i := range f.cells {
		f.cells[i] = false
	}
}

// CopyFrom overwrites f with the contents of src. Both frames must share a grid.
func (f *Frame) CopyFrom(src *Frame) {
	copy(f.cells, src.cells)
}

// Active returns the activated cells in row-major order.
func (f *Frame) Active() []Cell {
	var out []Cell
	for i, v := range f.cells {
		if v {
			out = append(out, f.grid.CellAt(i))
		}
	}
	return out
}

// Sampler is the adapter over the external sensor driver. Sample fills the
// frame with the readings for the current tick. It must not block beyond the
// tick budget. On error the scan loop treats the tick as all released.
type Sampler interface {
	Sample(f *Frame) error
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func(f *Frame) error

func (fn SamplerFunc) Sample(f *Frame) error { return fn(f) }
