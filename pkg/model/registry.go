package model

import (
	"reflect"
	"sync"

	"github.com/cuemby/strata/pkg/errors"
)

// registry is the process-wide metadata store, keyed by type identity.
// Synthetic entities (junction tables) are reachable by table name only.
type registry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]*Metadata
	byTable map[string]*Metadata
}

var global = &registry{
	byType:  make(map[reflect.Type]*Metadata),
	byTable: make(map[string]*Metadata),
}

// put stores metadata; re-registration overwrites (tests switch flavours)
func (r *registry) put(m *Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.Type != nil {
		r.byType[m.Type] = m
	}
	r.byTable[m.Table] = m
}

// Lookup returns the metadata registered for typ
func Lookup(typ reflect.Type) (*Metadata, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	m, ok := global.byType[typ]
	return m, ok
}

// LookupTable returns the metadata registered under a table name
func LookupTable(table string) (*Metadata, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	m, ok := global.byTable[table]
	return m, ok
}

// For returns metadata for the value's type, failing with Validation when
// the type was never registered.
func For(v interface{}) (*Metadata, error) {
	typ := reflect.TypeOf(v)
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil {
		return nil, errors.New(errors.KindValidation, "model: nil value has no metadata")
	}
	m, ok := Lookup(typ)
	if !ok {
		return nil, errors.New(errors.KindValidation, "model: type %s is not registered", typ)
	}
	return m, nil
}

// TypeOf resolves the registered type for a value, unwrapping pointers
func TypeOf(v interface{}) reflect.Type {
	typ := reflect.TypeOf(v)
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return typ
}

// SetFlavour rebinds an already-registered entity to another adapter flavour
func SetFlavour(typ reflect.Type, flavour string) error {
	global.mu.Lock()
	defer global.mu.Unlock()
	m, ok := global.byType[typ]
	if !ok {
		return errors.New(errors.KindValidation, "model: type %s is not registered", typ)
	}
	m.Flavour = flavour
	return nil
}
