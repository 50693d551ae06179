// Package matrix models the physical key grid and the adapters that turn the
// external sensor driver's readings into per-tick activation frames.
package matrix

import "fmt"

// Cell identifies a physical key switch by its row and column.
type Cell struct {
	Row uint8
	Col uint8
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Grid holds the fixed matrix dimensions.
type Grid struct {
	Rows int
	Cols int
}

// Necoboard is the 4x12 grid of the necoboard v2.
var Necoboard = Grid{Rows: 4, Cols: 12}

// Size returns the number of cells in the grid.
func (g Grid) Size() int { return g.Rows * g.Cols }

// Contains reports whether the cell lies inside the grid.
func (g Grid) Contains(c Cell) bool {
	return int(c.Row) < g.Rows && int(c.Col) < g.Cols
}

// Index returns the row-major index of a cell.
func (g Grid) Index(c Cell) int {
	return int(c.Row)*g.Cols + int(c.Col)
}

// CellAt is the inverse of Index.
func (g Grid) CellAt(i int) Cell {
	return Cell{Row: uint8(i / g.Cols), Col: uint8(i % g.Cols)}
}

// Cells returns every cell of the grid in row-major scan order.
func (g Grid) Cells() []Cell {
	out := make([]Cell, 0, g.Size())
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			out = append(out, Cell{Row: uint8(r), Col: uint8(c)})
		}
	}
	return out
}

// Validate checks that the grid fits in the Cell coordinate space.
func (g Grid) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("invalid grid %dx%d", g.Rows, g.Cols)
	}
	if g.Rows > 256 || g.Cols > 256 {
		return fmt.Errorf("grid %dx%d exceeds 256x256", g.Rows, g.Cols)
	}
	return nil
}
