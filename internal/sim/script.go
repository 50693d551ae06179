package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"github.com/necocen/necoboard/layout"
	"github.com/necocen/necoboard/matrix"
)

// Step holds a set of cells pressed for a number of ticks. Cells not listed
// are released. Fail makes the sampler report a read failure instead.
type Step struct {
	Press []string `json:"press,omitempty" yaml:"press,omitempty" toml:"press,omitempty"`
	Ticks int      `json:"ticks,omitempty" yaml:"ticks,omitempty" toml:"ticks,omitempty"`
	Fail  bool     `json:"fail,omitempty" yaml:"fail,omitempty" toml:"fail,omitempty"`
}

// Script is a sequence of steps played one tick at a time.
type Script struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Steps []Step `json:"steps" yaml:"steps" toml:"steps"`
}

// LoadScript reads a YAML, TOML or JSON script chosen by file extension.
func LoadScript(path string) (Script, error) {
	format, err := layout.ParseFormat(filepath.Ext(path))
	if err != nil {
		return Script{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data, format)
}

// ParseScript decodes a script.
func ParseScript(data []byte, format layout.Format) (Script, error) {
	var s Script
	var err error
	switch format {
	case layout.FormatYAML:
		err = yaml.Unmarshal(data, &s)
	case layout.FormatTOML:
		err = toml.Unmarshal(data, &s)
	case layout.FormatJSON:
		err = json.Unmarshal(data, &s)
	default:
		return Script{}, fmt.Errorf("%w: %q", layout.ErrUnknownFormat, format)
	}
	if err != nil {
		return Script{}, fmt.Errorf("decode %s script: %w", format, err)
	}
	return s, nil
}

type frameStep struct {
	cells []matrix.Cell
	ticks int
	fail  bool
}

// Player is a Sampler that plays a Script. Once the script is exhausted
// every tick reads as all released.
type Player struct {
	steps []frameStep
	step  int
	left  int
	total int
}

// NewPlayer resolves the script's cell references against table. A step
// with no tick count lasts one tick.
func NewPlayer(s Script, table *layout.Table) (*Player, error) {
	p := &Player{}
	for i, st := range s.Steps {
		if st.Ticks < 0 {
			return nil, fmt.Errorf("step %d: negative tick count %d", i, st.Ticks)
		}
		cells, err := ParseCells(st.Press, table)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		ticks := max(st.Ticks, 1)
		p.steps = append(p.steps, frameStep{cells: cells, ticks: ticks, fail: st.Fail})
		p.total += ticks
	}
	if len(p.steps) > 0 {
		p.left = p.steps[0].ticks
	}
	return p, nil
}

// Ticks returns the script length in ticks.
func (p *Player) Ticks() int { return p.total }

// Done reports whether every step has been played.
func (p *Player) Done() bool { return p.step >= len(p.steps) }

func (p *Player) Sample(f *matrix.Frame) error {
	f.Clear()
	if p.Done() {
		return nil
	}
	cur := p.steps[p.step]
	p.left--
	if p.left == 0 {
		p.step++
		if !p.Done() {
			p.left = p.steps[p.step].ticks
		}
	}
	if cur.fail {
		return ErrInjected
	}
	for _, c := range cur.cells {
		f.Set(c, true)
	}
	return nil
}
