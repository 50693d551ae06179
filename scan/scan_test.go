package scan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/necocen/necoboard/debounce"
	"github.com/necocen/necoboard/emitter"
	"github.com/necocen/necoboard/hid"
	"github.com/necocen/necoboard/layout"
	"github.com/necocen/necoboard/matrix"
	"github.com/necocen/necoboard/scan"
	"github.com/necocen/necoboard/sequencer"
)

type captureTransport struct {
	keyboard []hid.KeyboardReport
	consumer []hid.ConsumerReport
	fail     bool
}

func (c *captureTransport) SendKeyboard(r hid.KeyboardReport) error {
	if c.fail {
		return errors.New("link down")
	}
	c.keyboard = append(c.keyboard, r.Clone())
	return nil
}

func (c *captureTransport) SendConsumer(r hid.ConsumerReport) error {
	if c.fail {
		return errors.New("link down")
	}
	c.consumer = append(c.consumer, r)
	return nil
}

// scripted reports the cells in active as pressed, and fails while failing
// is set.
type scripted struct {
	active  []matrix.Cell
	failing bool
}

func (s *scripted) Sample(f *matrix.Frame) error {
	if s.failing {
		return errors.New("adc timeout")
	}
	f.Clear()
	for _, c := range s.active {
		f.Set(c, true)
	}
	return nil
}

var (
	cellQ     = matrix.Cell{Row: 0, Col: 1}
	cellLower = matrix.Cell{Row: 3, Col: 7}
)

const window = 3

func newScanner(t *testing.T, sampler matrix.Sampler, tr emitter.Transport) *scan.Scanner {
	t.Helper()
	s, err := scan.New(scan.Config{Debounce: debounce.Config{Window: window}}, layout.Necoboard(), sampler, tr, nil)
	require.NoError(t, err)
	return s
}

// settle runs one tick with nothing pressed so that later presses are not
// latched as keys held at power-on.
func settle(t *testing.T, s *scan.Scanner, src *scripted) {
	t.Helper()
	active := src.active
	src.active = nil
	s.Tick()
	src.active = active
}

func run(s *scan.Scanner, n int) []sequencer.Event {
	var events []sequencer.Event
	for i := 0; i < n; i++ {
		events = append(events, s.Tick().Events...)
	}
	return events
}

func TestPipelineLowerDigit(t *testing.T) {
	src := &scripted{}
	tr := &captureTransport{}
	s := newScanner(t, src, tr)
	settle(t, s, src)

	src.active = []matrix.Cell{cellLower, cellQ}
	events := run(s, window)
	require.Len(t, events, 1)
	assert.Equal(t, layout.Basic(hid.Key1), events[0].Key)
	assert.Equal(t, sequencer.Press, events[0].Kind)
	assert.Equal(t, []uint8{hid.Key1}, tr.keyboard[len(tr.keyboard)-1].Keys)

	src.active = []matrix.Cell{cellLower}
	events = run(s, window)
	require.Len(t, events, 1)
	assert.Equal(t, sequencer.Release, events[0].Kind)
	assert.Equal(t, layout.Basic(hid.Key1), events[0].Key)

	src.active = nil
	assert.Empty(t, run(s, window))
	assert.Equal(t, []layout.LayerID{layout.Base}, s.Context().Stack.Layers())

	src.active = []matrix.Cell{cellQ}
	events = run(s, window)
	require.Len(t, events, 1)
	assert.Equal(t, layout.Basic(hid.KeyQ), events[0].Key)

	st := s.Context().Stats
	assert.Equal(t, uint64(4*window+1), st.Ticks)
	assert.Equal(t, uint64(3), st.Events)
	assert.Zero(t, st.InvariantViolations)
}

func TestReadFailureReleasesKeys(t *testing.T) {
	src := &scripted{active: []matrix.Cell{cellQ}}
	tr := &captureTransport{}
	s := newScanner(t, src, tr)
	settle(t, s, src)

	require.Len(t, run(s, window), 1)

	src.failing = true
	events := run(s, window)
	require.Len(t, events, 1)
	assert.Equal(t, sequencer.Release, events[0].Kind)
	assert.Equal(t, uint64(window), s.Context().Stats.ReadFailures)
	assert.Empty(t, tr.keyboard[len(tr.keyboard)-1].Keys)
	assert.Empty(t, s.Context().Frame.Active())
}

func TestKeyHeldAtPowerOnStaysLatchedAfterNoData(t *testing.T) {
	g := layout.Necoboard().Grid()
	h := matrix.NewHandoff(g, 4)
	tr := &captureTransport{}
	s := newScanner(t, h, tr)

	rep := s.Tick()
	require.ErrorIs(t, rep.ReadErr, matrix.ErrNoData)

	held := matrix.NewFrame(g)
	held.Set(cellQ, true)
	var events []sequencer.Event
	for i := 0; i < 10; i++ {
		require.True(t, h.Publish(held))
		events = append(events, s.Tick().Events...)
	}
	assert.Empty(t, events)
	assert.Zero(t, s.Context().Sequencer.Held().Len())

	// The latched key only reports after a genuine release/press cycle.
	released := matrix.NewFrame(g)
	for i := 0; i < window; i++ {
		require.True(t, h.Publish(released))
		events = append(events, s.Tick().Events...)
	}
	assert.Empty(t, events)
	for i := 0; i < window; i++ {
		require.True(t, h.Publish(held))
		events = append(events, s.Tick().Events...)
	}
	require.Len(t, events, 1)
	assert.Equal(t, sequencer.Press, events[0].Kind)
	assert.Equal(t, layout.Basic(hid.KeyQ), events[0].Key)
	assert.Equal(t, uint64(1), s.Context().Stats.ReadFailures)
}

func TestTransportErrorsDoNotStopScanning(t *testing.T) {
	src := &scripted{active: []matrix.Cell{cellQ}}
	tr := &captureTransport{fail: true}
	s := newScanner(t, src, tr)

	src.active = nil
	rep := s.Tick()
	assert.Error(t, rep.SendErr)
	src.active = []matrix.Cell{cellQ}
	events := run(s, window)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(window+1), s.Context().Stats.TransportErrors)

	tr.fail = false
	s.Tick()
	require.NotEmpty(t, tr.keyboard)
	assert.Equal(t, []uint8{hid.KeyQ}, tr.keyboard[len(tr.keyboard)-1].Keys)
}

func TestObserver(t *testing.T) {
	src := &scripted{active: []matrix.Cell{cellQ}}
	s := newScanner(t, src, nil)
	var ticks []uint64
	s.AddObserver(scan.ObserverFunc(func(r scan.Report) { ticks = append(ticks, r.Tick) }))
	run(s, 3)
	assert.Equal(t, []uint64{1, 2, 3}, ticks)
}

func TestNewRejectsBadConfig(t *testing.T) {
	sampler := matrix.SamplerFunc(func(*matrix.Frame) error { return nil })
	tests := []struct {
		name  string
		cfg   scan.Config
		table *layout.Table
	}{
		{"nil table", scan.Config{}, nil},
		{"negative window", scan.Config{Debounce: debounce.Config{Window: -1}}, layout.Necoboard()},
		{"depth one", scan.Config{StackDepth: 1}, layout.Necoboard()},
		{"negative period", scan.Config{Period: -time.Second}, layout.Necoboard()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scan.New(tt.cfg, tt.table, sampler, nil, nil)
			assert.ErrorIs(t, err, scan.ErrConfig)
		})
	}

	s, err := scan.New(scan.Config{}, layout.Necoboard(), sampler, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, scan.DefaultPeriod, s.Period())
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &scripted{}
	s, err := scan.New(scan.Config{Period: time.Millisecond}, layout.Necoboard(), src, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Positive(t, s.Context().Stats.Ticks)
}
