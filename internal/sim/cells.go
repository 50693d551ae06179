// Package sim drives the scan core without hardware: scripted frame
// sequences, a manually controlled frame, an analog reading generator and
// an interactive console.
package sim

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/necocen/necoboard/layout"
	"github.com/necocen/necoboard/matrix"
)

// ErrUnknownCell is returned when a cell reference matches nothing.
var ErrUnknownCell = errors.New("unknown cell")

// ParseCell resolves a cell reference. "r,c" and "(r,c)" address a cell
// directly; anything else is a key token looked up on the base layer of
// table, first match in row-major order.
func ParseCell(ref string, table *layout.Table) (matrix.Cell, error) {
	ref = strings.TrimSpace(ref)
	g := table.Grid()
	if r, c, ok := strings.Cut(strings.Trim(ref, "()"), ","); ok {
		row, rerr := strconv.Atoi(strings.TrimSpace(r))
		col, cerr := strconv.Atoi(strings.TrimSpace(c))
		if rerr != nil || cerr != nil || row < 0 || col < 0 || row >= g.Rows || col >= g.Cols {
			return matrix.Cell{}, fmt.Errorf("%w: %q outside %dx%d grid", ErrUnknownCell, ref, g.Rows, g.Cols)
		}
		return matrix.Cell{Row: uint8(row), Col: uint8(col)}, nil
	}
	for _, cell := range g.Cells() {
		if strings.EqualFold(table.Token(table.Key(layout.Base, cell)), ref) {
			return cell, nil
		}
	}
	return matrix.Cell{}, fmt.Errorf("%w: %q is not on the base layer", ErrUnknownCell, ref)
}

// ParseCells resolves every reference.
func ParseCells(refs []string, table *layout.Table) ([]matrix.Cell, error) {
	out := make([]matrix.Cell, 0, len(refs))
	var errs []error
	for _, ref := range refs {
		c, err := ParseCell(ref, table)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, c)
	}
	return out, errors.Join(errs...)
}
