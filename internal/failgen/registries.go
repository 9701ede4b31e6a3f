package failgen

import (
	"fmt"
	"strings"
)

// Registries is the set of registries, one per generator type.
type Registries struct {
	all      []*Registry
	byPrefix map[string]*Registry
}

func NewRegistries(store Store, publisher Publisher, assoc *Associations) *Registries {
	rs := &Registries{byPrefix: make(map[string]*Registry)}
	for _, typ := range AllTypes() {
		r := NewRegistry(typ, store, publisher, assoc)
		rs.all = append(rs.all, r)
		rs.byPrefix[typ.Prefix] = r
	}
	return rs
}

func (rs *Registries) Load() {
	for _, r := range rs.all {
		r.Load()
	}
}

// Refresh reloads every type whose stored settings changed and returns the
// names of those types.
func (rs *Registries) Refresh() []string {
	var changed []string
	for _, r := range rs.all {
		if r.Refresh() {
			changed = append(changed, r.typ.Name)
		}
	}
	return changed
}

func (rs *Registries) All() []*Registry {
	return rs.all
}

func (rs *Registries) ByPrefix(prefix string) (*Registry, error) {
	r, ok := rs.byPrefix[prefix]
	if !ok {
		return nil, fmt.Errorf("%w: prefix %q", ErrUnknownGenerator, prefix)
	}
	return r, nil
}

// ByName matches a type name or prefix, ignoring case.
func (rs *Registries) ByName(name string) (*Registry, error) {
	for _, r := range rs.all {
		if strings.EqualFold(r.typ.Name, name) || strings.EqualFold(r.typ.Prefix, name) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, name)
}

// Lookup resolves a unique id to its registry and record index.
func (rs *Registries) Lookup(uid string) (*Registry, int, error) {
	prefix, index, ok := ParseUniqueID(uid)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidUniqueID, uid)
	}
	r, err := rs.ByPrefix(prefix)
	if err != nil {
		return nil, 0, err
	}
	if index >= r.Count() {
		return nil, 0, fmt.Errorf("%w: %s", ErrIndexOutOfRange, uid)
	}
	return r, index, nil
}
