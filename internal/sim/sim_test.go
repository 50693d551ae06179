package sim_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/necocen/necoboard/debounce"
	"github.com/necocen/necoboard/emitter"
	"github.com/necocen/necoboard/hid"
	"github.com/necocen/necoboard/internal/sim"
	"github.com/necocen/necoboard/layout"
	"github.com/necocen/necoboard/matrix"
	"github.com/necocen/necoboard/scan"
	"github.com/necocen/necoboard/sequencer"
)

const window = 3

func newScanner(t *testing.T, sampler matrix.Sampler) *scan.Scanner {
	t.Helper()
	s, err := scan.New(scan.Config{Debounce: debounce.Config{Window: window}}, layout.Necoboard(), sampler, emitter.Discard, nil)
	require.NoError(t, err)
	return s
}

func TestParseCell(t *testing.T) {
	table := layout.Necoboard()
	tests := []struct {
		name    string
		ref     string
		want    matrix.Cell
		wantErr bool
	}{
		{name: "coordinates", ref: "0,1", want: matrix.Cell{Row: 0, Col: 1}},
		{name: "parenthesized", ref: "(3,7)", want: matrix.Cell{Row: 3, Col: 7}},
		{name: "spaced", ref: " 2 , 11 ", want: matrix.Cell{Row: 2, Col: 11}},
		{name: "token", ref: "Q", want: matrix.Cell{Row: 0, Col: 1}},
		{name: "token ignores case", ref: "spc", want: matrix.Cell{Row: 3, Col: 5}},
		{name: "layer token", ref: "RAISE", want: matrix.Cell{Row: 3, Col: 8}},
		{name: "outside grid", ref: "4,0", wantErr: true},
		{name: "negative", ref: "-1,0", wantErr: true},
		{name: "unknown token", ref: "Nope", wantErr: true},
		{name: "token only on upper layer", ref: "Excl", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sim.ParseCell(tt.ref, table)
			if tt.wantErr {
				assert.ErrorIs(t, err, sim.ErrUnknownCell)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadScriptFormats(t *testing.T) {
	want := sim.Script{
		Name: "lower-one",
		Steps: []sim.Step{
			{Ticks: 1},
			{Press: []string{"LOWER", "Q"}, Ticks: 3},
			{Press: []string{"LOWER"}, Ticks: 3},
			{Ticks: 3},
		},
	}
	for _, path := range []string{"testdata/lower-one.yaml", "testdata/lower-one.toml", "testdata/lower-one.json"} {
		t.Run(path, func(t *testing.T) {
			got, err := sim.LoadScript(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := sim.LoadScript("testdata/lower-one.txt")
	assert.ErrorIs(t, err, layout.ErrUnknownFormat)
}

func TestPlayerDrivesScanner(t *testing.T) {
	script, err := sim.LoadScript("testdata/lower-one.yaml")
	require.NoError(t, err)
	player, err := sim.NewPlayer(script, layout.Necoboard())
	require.NoError(t, err)
	assert.Equal(t, 10, player.Ticks())

	s := newScanner(t, player)
	var events []sequencer.Event
	for !player.Done() {
		events = append(events, s.Tick().Events...)
	}
	require.Len(t, events, 2)
	assert.Equal(t, sequencer.Event{Cell: matrix.Cell{Row: 0, Col: 1}, Key: layout.Basic(hid.Key1), Kind: sequencer.Press, Tick: 4}, events[0])
	assert.Equal(t, sequencer.Event{Cell: matrix.Cell{Row: 0, Col: 1}, Key: layout.Basic(hid.Key1), Kind: sequencer.Release, Tick: 7}, events[1])
	assert.Equal(t, uint64(10), s.Context().Stats.Ticks)
	assert.Equal(t, []layout.LayerID{layout.Base}, s.Context().Stack.Layers())

	// An exhausted script reads as all released.
	rep := s.Tick()
	assert.NoError(t, rep.ReadErr)
	assert.Empty(t, rep.Events)
}

func TestPlayerFailStep(t *testing.T) {
	script := sim.Script{Steps: []sim.Step{
		{Ticks: 1},
		{Press: []string{"Q"}, Ticks: 3},
		{Fail: true, Ticks: 3},
	}}
	player, err := sim.NewPlayer(script, layout.Necoboard())
	require.NoError(t, err)

	s := newScanner(t, player)
	var events []sequencer.Event
	for !player.Done() {
		rep := s.Tick()
		if rep.ReadErr != nil {
			assert.ErrorIs(t, rep.ReadErr, sim.ErrInjected)
		}
		events = append(events, rep.Events...)
	}
	require.Len(t, events, 2)
	assert.Equal(t, sequencer.Press, events[0].Kind)
	assert.Equal(t, sequencer.Release, events[1].Kind)
	assert.Equal(t, uint64(7), events[1].Tick)
	assert.Equal(t, uint64(3), s.Context().Stats.ReadFailures)
}

func TestNewPlayerErrors(t *testing.T) {
	table := layout.Necoboard()
	tests := []struct {
		name   string
		script sim.Script
		target error
	}{
		{name: "unknown cell", script: sim.Script{Steps: []sim.Step{{Press: []string{"Q", "Nope"}}}}, target: sim.ErrUnknownCell},
		{name: "negative ticks", script: sim.Script{Steps: []sim.Step{{Ticks: -1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.NewPlayer(tt.script, table)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestAnalogReaderThroughFilter(t *testing.T) {
	g := matrix.Necoboard
	q := matrix.Cell{Row: 0, Col: 1}
	manual := sim.NewManual(g)
	sampler := matrix.NewAnalogSampler(sim.NewAnalogReader(manual, g, 1), g, matrix.AnalogConfig{})
	f := matrix.NewFrame(g)

	manual.Set(true, q)
	require.NoError(t, sampler.Sample(f))
	assert.Equal(t, []matrix.Cell{q}, f.Active())
	assert.Greater(t, sampler.Value(q), uint16(matrix.DefaultThreshold))

	manual.Set(false, q)
	for range 3 {
		require.NoError(t, sampler.Sample(f))
	}
	assert.Empty(t, f.Active())

	manual.SetFailing(true)
	err := sampler.Sample(f)
	assert.True(t, errors.Is(err, sim.ErrInjected))
}

func TestConsole(t *testing.T) {
	manual := sim.NewManual(matrix.Necoboard)
	s := newScanner(t, manual)
	var out bytes.Buffer
	c := sim.NewConsole(s, manual, layout.Necoboard(), &out)

	assert.False(t, c.Exec("tick"))
	assert.False(t, c.Exec("tap q"))
	assert.Contains(t, out.String(), "press   (0,1) Q")
	assert.Contains(t, out.String(), "report  mods=0x00 keys=[Q]")
	assert.Contains(t, out.String(), "release (0,1) Q")
	assert.Equal(t, uint64(1+2*(window+1)), s.Context().Stats.Ticks)

	out.Reset()
	assert.False(t, c.Exec("press LOWER"))
	assert.False(t, c.Exec("tick 4"))
	assert.False(t, c.Exec("state"))
	assert.Contains(t, out.String(), "layers:   [default lower] effective=lower")
	assert.Contains(t, out.String(), "held:     [(3,7)=LOWER]")

	out.Reset()
	assert.False(t, c.Exec("release all"))
	assert.False(t, c.Exec("fail on"))
	assert.Contains(t, out.String(), "Matrix reads failing: true")
	assert.False(t, c.Exec("t"))
	assert.Contains(t, out.String(), "read failed")

	out.Reset()
	assert.False(t, c.Exec("press 9,9"))
	assert.Contains(t, out.String(), "Error:")
	assert.False(t, c.Exec("tick zero"))
	assert.Contains(t, out.String(), `invalid tick count "zero"`)
	assert.False(t, c.Exec("bogus"))
	assert.Contains(t, out.String(), "Unknown command: bogus")
	assert.False(t, c.Exec("   "))
	assert.True(t, c.Exec("quit"))
}
