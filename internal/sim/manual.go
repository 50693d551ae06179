package sim

import (
	"errors"

	"github.com/necocen/necoboard/matrix"
)

// ErrInjected is the read failure reported while a sampler is failing.
var ErrInjected = errors.New("injected matrix read failure")

// Manual is a Sampler over a frame the caller edits between ticks.
type Manual struct {
	frame   *matrix.Frame
	failing bool
}

func NewManual(g matrix.Grid) *Manual {
	return &Manual{frame: matrix.NewFrame(g)}
}

// Set presses or releases cells.
func (m *Manual) Set(active bool, cells ...matrix.Cell) {
	for _, c := range cells {
		m.frame.Set(c, active)
	}
}

// ReleaseAll releases every cell.
func (m *Manual) ReleaseAll() { m.frame.Clear() }

// SetFailing makes Sample fail until cleared.
func (m *Manual) SetFailing(failing bool) { m.failing = failing }

func (m *Manual) Failing() bool { return m.failing }

// Active returns the pressed cells in row-major order.
func (m *Manual) Active() []matrix.Cell { return m.frame.Active() }

func (m *Manual) Sample(f *matrix.Frame) error {
	if m.failing {
		return ErrInjected
	}
	f.CopyFrom(m.frame)
	return nil
}
