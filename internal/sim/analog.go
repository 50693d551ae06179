package sim

import (
	"math/rand/v2"

	"github.com/necocen/necoboard/matrix"
)

// Analog reading levels. Pressed cells read Baseline+Swing; both levels get
// uniform noise of up to Noise counts.
const (
	DefaultBaseline = 12
	DefaultSwing    = 180
	DefaultNoise    = 8
)

// AnalogReader turns a digital Sampler into raw ADC readings so that the
// analog filter and threshold path runs against scripted input. Reading the
// first cell of the grid samples src for the new tick; every other read
// reuses that frame.
type AnalogReader struct {
	src      matrix.Sampler
	frame    *matrix.Frame
	first    matrix.Cell
	err      error
	rng      *rand.Rand
	Baseline uint16
	Swing    uint16
	Noise    uint16
}

// NewAnalogReader wraps src. seed makes the noise reproducible.
func NewAnalogReader(src matrix.Sampler, g matrix.Grid, seed uint64) *AnalogReader {
	return &AnalogReader{
		src:      src,
		frame:    matrix.NewFrame(g),
		first:    g.CellAt(0),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Baseline: DefaultBaseline,
		Swing:    DefaultSwing,
		Noise:    DefaultNoise,
	}
}

func (a *AnalogReader) Read(c matrix.Cell) (uint16, error) {
	if c == a.first {
		a.err = a.src.Sample(a.frame)
	}
	if a.err != nil {
		return 0, a.err
	}
	v := a.Baseline
	if a.frame.Get(c) {
		v += a.Swing
	}
	if a.Noise > 0 {
		v += uint16(a.rng.IntN(int(a.Noise) + 1))
	}
	return v, nil
}
