package layout

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/necocen/necoboard/matrix"
)

// Configuration errors. Build wraps each finding in a *ConfigError.
var (
	ErrNoLayers        = errors.New("layout has no layers")
	ErrLayerName       = errors.New("invalid layer name")
	ErrGridShape       = errors.New("grid shape does not match matrix")
	ErrTransparentBase = errors.New("base layer contains a transparent key")
	ErrLayerTarget     = errors.New("invalid layer key target")
	ErrComposite       = errors.New("invalid composite layer")
	ErrSchema          = errors.New("layout document does not match schema")
)

// ConfigError describes one problem found while building a table. Row and
// Col are -1 when the problem is not tied to a cell.
type ConfigError struct {
	Layer  string
	Row    int
	Col    int
	Err    error
	Detail string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("layout")
	if e.Layer != "" {
		fmt.Fprintf(&b, " layer %q", e.Layer)
	}
	if e.Row >= 0 && e.Col >= 0 {
		fmt.Fprintf(&b, " cell (%d,%d)", e.Row, e.Col)
	} else if e.Row >= 0 {
		fmt.Fprintf(&b, " row %d", e.Row)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// LayerDef is the textual definition of one layer: one string of
// whitespace-separated tokens per matrix row.
type LayerDef struct {
	Name string
	Rows []string
}

// CompositeDef defines a layer that becomes active, above every regular
// layer, whenever all of the layers named in When are active.
type CompositeDef struct {
	Name string
	When []string
	Rows []string
}

// Definition is the raw input to Build.
type Definition struct {
	Grid       matrix.Grid
	Layers     []LayerDef
	Composites []CompositeDef
}

// Layer is a built layer.
type Layer struct {
	ID   LayerID
	Name string
	// Members lists the layers that activate a composite layer. It is empty
	// for regular layers.
	Members []LayerID
	keys    []Key
}

// IsComposite reports whether the layer is a composite layer.
func (l *Layer) IsComposite() bool { return len(l.Members) > 0 }

// Table is the immutable (layer, cell) -> key mapping. Every layer carries
// exactly one key per cell and the base layer has no transparent keys.
type Table struct {
	grid       matrix.Grid
	layers     []*Layer
	regular    int
	byName     map[string]LayerID
	composites []LayerID
}

var layerNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Build parses and validates a definition. All problems are reported
// together, joined with errors.Join.
func Build(def Definition) (*Table, error) {
	if err := def.Grid.Validate(); err != nil {
		return nil, &ConfigError{Row: -1, Col: -1, Err: ErrGridShape, Detail: err.Error()}
	}
	if len(def.Layers) == 0 {
		return nil, &ConfigError{Row: -1, Col: -1, Err: ErrNoLayers}
	}
	if len(def.Layers)+len(def.Composites) > 256 {
		return nil, &ConfigError{Row: -1, Col: -1, Err: ErrLayerName, Detail: "more than 256 layers"}
	}

	t := &Table{
		grid:    def.Grid,
		regular: len(def.Layers),
		byName:  map[string]LayerID{},
	}
	var errs []error
	fail := func(layer string, row, col int, err error, detail string) {
		errs = append(errs, &ConfigError{Layer: layer, Row: row, Col: col, Err: err, Detail: detail})
	}

	names := func(name string) bool {
		if !layerNameRe.MatchString(name) {
			fail(name, -1, -1, ErrLayerName, "names must start with a letter and contain only letters, digits or '_'")
			return false
		}
		upper := strings.ToUpper(name)
		if IsStaticToken(upper) {
			fail(name, -1, -1, ErrLayerName, fmt.Sprintf("%q collides with a key token", upper))
			return false
		}
		if _, dup := t.byName[upper]; dup {
			fail(name, -1, -1, ErrLayerName, "duplicate layer name")
			return false
		}
		return true
	}

	// Layer keys may only target regular, non-base layers.
	targets := map[string]LayerID{}
	for i, ld := range def.Layers {
		id := LayerID(i)
		if names(ld.Name) {
			upper := strings.ToUpper(ld.Name)
			t.byName[upper] = id
			if id != Base {
				targets[upper] = id
			}
		}
		t.layers = append(t.layers, &Layer{ID: id, Name: ld.Name})
	}
	for i, cd := range def.Composites {
		id := LayerID(len(def.Layers) + i)
		l := &Layer{ID: id, Name: cd.Name}
		if names(cd.Name) {
			t.byName[strings.ToUpper(cd.Name)] = id
		}
		if len(cd.When) < 2 {
			fail(cd.Name, -1, -1, ErrComposite, "a composite needs at least two member layers")
		}
		seen := map[LayerID]bool{}
		for _, m := range cd.When {
			mid, ok := targets[strings.ToUpper(m)]
			if !ok {
				fail(cd.Name, -1, -1, ErrComposite, fmt.Sprintf("member %q is not a non-base regular layer", m))
				continue
			}
			if seen[mid] {
				fail(cd.Name, -1, -1, ErrComposite, fmt.Sprintf("member %q listed twice", m))
				continue
			}
			seen[mid] = true
			l.Members = append(l.Members, mid)
		}
		t.layers = append(t.layers, l)
		t.composites = append(t.composites, id)
	}

	parse := func(l *Layer, rows []string) {
		l.keys = make([]Key, t.grid.Size())
		for i := range l.keys {
			l.keys[i] = None()
		}
		if len(rows) != t.grid.Rows {
			fail(l.Name, -1, -1, ErrGridShape, fmt.Sprintf("got %d rows, want %d", len(rows), t.grid.Rows))
		}
		for r, row := range rows {
			if r >= t.grid.Rows {
				break
			}
			tokens := strings.Fields(row)
			if len(tokens) != t.grid.Cols {
				fail(l.Name, r, -1, ErrGridShape, fmt.Sprintf("got %d keys, want %d", len(tokens), t.grid.Cols))
			}
			for c, tok := range tokens {
				if c >= t.grid.Cols {
					break
				}
				k, err := ParseToken(tok, targets)
				if err != nil {
					name := strings.TrimSuffix(strings.TrimPrefix(tok, "TG("), ")")
					if _, known := t.byName[name]; known {
						err = ErrLayerTarget
					}
					fail(l.Name, r, c, err, tok)
					continue
				}
				l.keys[t.grid.Index(matrix.Cell{Row: uint8(r), Col: uint8(c)})] = k
			}
		}
	}
	for i, ld := range def.Layers {
		parse(t.layers[i], ld.Rows)
	}
	for i, cd := range def.Composites {
		parse(t.layers[len(def.Layers)+i], cd.Rows)
	}

	base := t.layers[Base]
	for i, k := range base.keys {
		if k.IsTransparent() {
			c := t.grid.CellAt(i)
			fail(base.Name, int(c.Row), int(c.Col), ErrTransparentBase, "")
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return t, nil
}

// MustBuild is like Build but panics on error. It is intended for layouts
// compiled into the binary.
func MustBuild(def Definition) *Table {
	t, err := Build(def)
	if err != nil {
		panic(err)
	}
	return t
}

// Grid returns the matrix dimensions the table was built for.
func (t *Table) Grid() matrix.Grid { return t.grid }

// NumLayers returns the number of layers including composites.
func (t *Table) NumLayers() int { return len(t.layers) }

// Layer returns a layer by ID, or nil.
func (t *Table) Layer(id LayerID) *Layer {
	if int(id) >= len(t.layers) {
		return nil
	}
	return t.layers[id]
}

// LayerByName looks a layer up by name, ignoring case.
func (t *Table) LayerByName(name string) (LayerID, bool) {
	id, ok := t.byName[strings.ToUpper(name)]
	return id, ok
}

// RegularLayers returns the number of non-composite layers. Regular layers
// have IDs 0 through RegularLayers()-1.
func (t *Table) RegularLayers() int { return t.regular }

// Composites returns the composite layer IDs in definition order.
func (t *Table) Composites() []LayerID { return t.composites }

// Key returns the key of a cell on a layer. Unknown layers and cells outside
// the grid read as transparent.
func (t *Table) Key(id LayerID, c matrix.Cell) Key {
	if int(id) >= len(t.layers) || !t.grid.Contains(c) {
		return Transparent()
	}
	return t.layers[id].keys[t.grid.Index(c)]
}

// Token renders a key in the token vocabulary, using this table's layer names.
func (t *Table) Token(k Key) string {
	switch k.Kind {
	case KindLayerHold, KindLayerToggle:
		l := t.Layer(k.Layer)
		if l == nil {
			return k.String()
		}
		name := strings.ToUpper(l.Name)
		if k.Kind == KindLayerToggle {
			return "TG(" + name + ")"
		}
		return name
	default:
		return k.String()
	}
}

// Rows renders a layer back into token rows.
func (t *Table) Rows(id LayerID) []string {
	l := t.Layer(id)
	if l == nil {
		return nil
	}
	rows := make([]string, t.grid.Rows)
	for r := 0; r < t.grid.Rows; r++ {
		tokens := make([]string, t.grid.Cols)
		for c := 0; c < t.grid.Cols; c++ {
			tokens[c] = t.Token(l.keys[t.grid.Index(matrix.Cell{Row: uint8(r), Col: uint8(c)})])
		}
		rows[r] = strings.Join(tokens, " ")
	}
	return rows
}
