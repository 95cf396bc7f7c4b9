package adapter

import (
	"context"
	"sync"

	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/model"
	"github.com/cuemby/strata/pkg/query"
	"github.com/cuemby/strata/pkg/sequence"
)

// Record is the serialised shape entities take across the adapter
// boundary: a column-keyed document without its primary key.
type Record = map[string]interface{}

// Adapter is the storage engine contract repositories talk to.
// Implementations register under a flavour string; models select a
// flavour via metadata.
type Adapter interface {
	Flavour() string

	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error

	// CRUD primitives. Create fails with Conflict when id exists;
	// Read/Update/Delete fail with NotFound when it does not.
	Create(ctx context.Context, table, id string, record Record) (Record, error)
	Read(ctx context.Context, table, id string) (Record, error)
	Update(ctx context.Context, table, id string, record Record) (Record, error)
	Delete(ctx context.Context, table, id string) (Record, error)

	// Raw executes a compiled plan, returning a result set or an
	// aggregate scalar/structure.
	Raw(ctx context.Context, plan *query.Plan) (interface{}, error)

	// Sequence returns a handle over a named sequence persisted in
	// this adapter's storage.
	Sequence(opts sequence.Options) (sequence.Sequence, error)

	// Flags completes a partial flag bag; every operation is stamped
	// with a fresh UUID.
	Flags(op model.Operation, table string, partial map[string]interface{}) Flags

	// ParseError normalises backend failures into the framework
	// taxonomy so repositories see canonical kinds.
	ParseError(err error) error

	// Paginator builds a pager over a statement
	Paginator(stmt *query.Statement, size int) (*query.Paginator, error)
}

// registry maps flavour → adapter instance, process-wide
var (
	regMu    sync.RWMutex
	adapters = make(map[string]Adapter)
	current  string
)

// Register stores an adapter under its flavour. The first registered
// adapter becomes the current default.
func Register(a Adapter) {
	regMu.Lock()
	defer regMu.Unlock()
	adapters[a.Flavour()] = a
	if current == "" {
		current = a.Flavour()
	}
}

// Unregister removes a flavour (used by tests tearing down adapters)
func Unregister(flavour string) {
	regMu.Lock()
	defer regMu.Unlock()
	delete(adapters, flavour)
	if current == flavour {
		current = ""
	}
}

// Get resolves a flavour to its adapter instance
func Get(flavour string) (Adapter, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	if flavour == "" {
		flavour = current
	}
	a, ok := adapters[flavour]
	if !ok {
		return nil, errors.New(errors.KindUnsupported, "no adapter registered for flavour %q", flavour)
	}
	return a, nil
}

// SetCurrent switches the default flavour
func SetCurrent(flavour string) error {
	regMu.Lock()
	defer regMu.Unlock()
	if _, ok := adapters[flavour]; !ok {
		return errors.New(errors.KindUnsupported, "no adapter registered for flavour %q", flavour)
	}
	current = flavour
	return nil
}

// Current returns the default flavour
func Current() string {
	regMu.RLock()
	defer regMu.RUnlock()
	return current
}
