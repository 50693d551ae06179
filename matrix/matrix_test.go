package matrix_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/necocen/necoboard/matrix"
)

func TestGridIndexRoundTrip(t *testing.T) {
	g := matrix.Necoboard
	cells := g.Cells()
	require.Len(t, cells, 48)
	for i, c := range cells {
		assert.Equal(t, i, g.Index(c))
		assert.Equal(t, c, g.CellAt(i))
	}
	assert.Equal(t, matrix.Cell{Row: 0, Col: 11}, cells[11])
	assert.Equal(t, matrix.Cell{Row: 1, Col: 0}, cells[12])
}

func TestGridValidate(t *testing.T) {
	assert.NoError(t, matrix.Necoboard.Validate())
	assert.Error(t, matrix.Grid{Rows: 0, Cols: 12}.Validate())
	assert.Error(t, matrix.Grid{Rows: 4, Cols: 300}.Validate())
}

func TestFrameOutOfRange(t *testing.T) {
	f := matrix.NewFrame(matrix.Necoboard)
	f.Set(matrix.Cell{Row: 9, Col: 0}, true)
	assert.False(t, f.Get(matrix.Cell{Row: 9, Col: 0}))
	assert.Empty(t, f.Active())

	f.Set(matrix.Cell{Row: 3, Col: 7}, true)
	f.Set(matrix.Cell{Row: 0, Col: 1}, true)
	assert.Equal(t, []matrix.Cell{{Row: 0, Col: 1}, {Row: 3, Col: 7}}, f.Active())

	f.Clear()
	assert.Empty(t, f.Active())
}

func TestKalmanFilterConverges(t *testing.T) {
	k := matrix.NewKalmanFilter(matrix.DefaultStateSigma, matrix.DefaultNoiseSigma)
	assert.Equal(t, float32(0), k.Predict(0))

	var v float32
	for i := 0; i < 50; i++ {
		v = k.Predict(100)
	}
	assert.InDelta(t, 100, v, 1)
}

type fakeReader struct {
	values map[matrix.Cell]uint16
	err    error
}

func (r *fakeReader) Read(c matrix.Cell) (uint16, error) {
	if r.err != nil {
		return 0, r.err
	}
	return r.values[c], nil
}

func TestAnalogSamplerThreshold(t *testing.T) {
	target := matrix.Cell{Row: 2, Col: 5}
	r := &fakeReader{values: map[matrix.Cell]uint16{target: 200}}
	s := matrix.NewAnalogSampler(r, matrix.Necoboard, matrix.AnalogConfig{})
	f := matrix.NewFrame(matrix.Necoboard)

	require.NoError(t, s.Sample(f))
	assert.Equal(t, []matrix.Cell{target}, f.Active())
	assert.Equal(t, uint16(200), s.Value(target))

	r.values[target] = 0
	for i := 0; i < 30; i++ {
		require.NoError(t, s.Sample(f))
	}
	assert.Empty(t, f.Active())
}

func TestAnalogSamplerReadError(t *testing.T) {
	boom := errors.New("adc busy")
	s := matrix.NewAnalogSampler(&fakeReader{err: boom}, matrix.Necoboard, matrix.AnalogConfig{})
	err := s.Sample(matrix.NewFrame(matrix.Necoboard))
	assert.ErrorIs(t, err, boom)
}

func TestHandoff(t *testing.T) {
	g := matrix.Grid{Rows: 1, Cols: 4}
	h := matrix.NewHandoff(g, 2)
	out := matrix.NewFrame(g)

	assert.ErrorIs(t, h.Sample(out), matrix.ErrNoData)

	in := matrix.NewFrame(g)
	in.Set(matrix.Cell{Col: 1}, true)
	assert.True(t, h.Publish(in))
	in.Clear()
	in.Set(matrix.Cell{Col: 2}, true)
	assert.True(t, h.Publish(in))
	assert.False(t, h.Publish(in), "ring is full")
	assert.Equal(t, 2, h.Pending())

	require.NoError(t, h.Sample(out))
	assert.Equal(t, []matrix.Cell{{Col: 2}}, out.Active(), "newest frame wins")
	assert.Equal(t, 0, h.Pending())
	assert.ErrorIs(t, h.Sample(out), matrix.ErrNoData)
}

func TestHandoffConcurrent(t *testing.T) {
	g := matrix.Grid{Rows: 1, Cols: 8}
	h := matrix.NewHandoff(g, 4)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f := matrix.NewFrame(g)
		for i := 0; i < 1000; i++ {
			f.Clear()
			f.Set(matrix.Cell{Col: uint8(i % 8)}, true)
			h.Publish(f)
		}
	}()

	out := matrix.NewFrame(g)
	for i := 0; i < 1000; i++ {
		if err := h.Sample(out); err == nil {
			assert.Len(t, out.Active(), 1)
		}
	}
	wg.Wait()
}
