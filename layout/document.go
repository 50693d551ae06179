package layout

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/necocen/necoboard/matrix"
)

// Format is a layout document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned for document encodings other than YAML, TOML
// and JSON.
var ErrUnknownFormat = errors.New("unknown layout document format")

// ParseFormat maps a format name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Document is the on-disk form of a layout. Each entry of Keys is one matrix
// row of whitespace-separated tokens.
type Document struct {
	Rows       int            `json:"rows" yaml:"rows" toml:"rows"`
	Cols       int            `json:"cols" yaml:"cols" toml:"cols"`
	Layers     []LayerDoc     `json:"layers" yaml:"layers" toml:"layers"`
	Composites []CompositeDoc `json:"composites,omitempty" yaml:"composites,omitempty" toml:"composites,omitempty"`
}

type LayerDoc struct {
	Name string   `json:"name" yaml:"name" toml:"name"`
	Keys []string `json:"keys" yaml:"keys" toml:"keys"`
}

type CompositeDoc struct {
	Name string   `json:"name" yaml:"name" toml:"name"`
	When []string `json:"when" yaml:"when" toml:"when"`
	Keys []string `json:"keys" yaml:"keys" toml:"keys"`
}

// Definition converts the document into Build input.
func (d Document) Definition() Definition {
	def := Definition{Grid: matrix.Grid{Rows: d.Rows, Cols: d.Cols}}
	for _, l := range d.Layers {
		def.Layers = append(def.Layers, LayerDef{Name: l.Name, Rows: l.Keys})
	}
	for _, c := range d.Composites {
		def.Composites = append(def.Composites, CompositeDef{Name: c.Name, When: c.When, Rows: c.Keys})
	}
	return def
}

// Document renders a built table back into document form.
func (t *Table) Document() Document {
	d := Document{Rows: t.grid.Rows, Cols: t.grid.Cols}
	for _, l := range t.layers {
		if !l.IsComposite() {
			d.Layers = append(d.Layers, LayerDoc{Name: l.Name, Keys: t.Rows(l.ID)})
			continue
		}
		cd := CompositeDoc{Name: l.Name, Keys: t.Rows(l.ID)}
		for _, m := range l.Members {
			cd.When = append(cd.When, t.layers[m].Name)
		}
		d.Composites = append(d.Composites, cd)
	}
	return d
}

// Encode serializes a document.
func (d Document) Encode(format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(d)
	case FormatTOML:
		return toml.Marshal(d)
	case FormatJSON:
		b, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

//go:embed layout.schema.json
var schemaJSON []byte

const schemaURL = "necoboard-layout.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Load reads a layout document, choosing the format from the file extension,
// and builds it.
func Load(path string) (*Table, error) {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	return Parse(data, format)
}

// Parse decodes a layout document, validates it against the embedded schema
// and builds the table.
func Parse(data []byte, format Format) (*Table, error) {
	doc, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	return Build(doc.Definition())
}

// Decode decodes and schema-validates a layout document without building it.
func Decode(data []byte, format Format) (Document, error) {
	var raw any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Document{}, fmt.Errorf("decode yaml layout: %w", err)
		}
	case FormatTOML:
		tree, err := toml.LoadBytes(data)
		if err != nil {
			return Document{}, fmt.Errorf("decode toml layout: %w", err)
		}
		raw = tree.ToMap()
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return Document{}, fmt.Errorf("decode json layout: %w", err)
		}
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	// Normalize through JSON so the validator only sees JSON value types.
	normalized, err := json.Marshal(raw)
	if err != nil {
		return Document{}, fmt.Errorf("normalize layout: %w", err)
	}
	var instance any
	dec := json.NewDecoder(bytes.NewReader(normalized))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return Document{}, fmt.Errorf("normalize layout: %w", err)
	}

	s, err := compiledSchema()
	if err != nil {
		return Document{}, err
	}
	if err := s.Validate(instance); err != nil {
		return Document{}, &ConfigError{Row: -1, Col: -1, Err: ErrSchema, Detail: err.Error()}
	}

	var doc Document
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return Document{}, fmt.Errorf("decode layout: %w", err)
	}
	return doc, nil
}
