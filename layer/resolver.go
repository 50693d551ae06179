package layer

import (
	"github.com/necocen/necoboard/layout"
	"github.com/necocen/necoboard/matrix"
)

// Resolver maps a cell to its logical key under a layer stack.
type Resolver struct {
	table *layout.Table
}

func NewResolver(t *layout.Table) *Resolver {
	return &Resolver{table: t}
}

// Table returns the layout the resolver reads from.
func (r *Resolver) Table() *layout.Table { return r.table }

// Resolve returns the first non-transparent key for c, looking first at
// composite layers whose members are all active (in definition order) and
// then down the stack from the top. The base layer has no transparent keys,
// so the walk always ends there. Resolve does not modify the stack.
func (r *Resolver) Resolve(s *Stack, c matrix.Cell) layout.Key {
	for _, id := range r.table.Composites() {
		if !r.compositeActive(s, id) {
			continue
		}
		if k := r.table.Key(id, c); !k.IsTransparent() {
			return k
		}
	}
	for i := len(s.entries) - 1; i >= 0; i-- {
		if k := r.table.Key(s.entries[i].id, c); !k.IsTransparent() {
			return k
		}
	}
	return layout.None()
}

// Effective returns the layer that currently shadows all others: the first
// active composite, or else the top of the stack.
func (r *Resolver) Effective(s *Stack) layout.LayerID {
	for _, id := range r.table.Composites() {
		if r.compositeActive(s, id) {
			return id
		}
	}
	return s.Top()
}

func (r *Resolver) compositeActive(s *Stack, id layout.LayerID) bool {
	l := r.table.Layer(id)
	if l == nil {
		return false
	}
	for _, m := range l.Members {
		if !s.Active(m) {
			return false
		}
	}
	return true
}
