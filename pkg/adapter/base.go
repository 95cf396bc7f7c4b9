package adapter

import (
	"context"
	stderrors "errors"

	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/model"
	"github.com/cuemby/strata/pkg/query"
	"github.com/cuemby/strata/pkg/sequence"
)

// sequenceTable is the reserved table sequence records live in
const sequenceTable = "sequences"

// Base carries the behaviour every adapter shares: flag stamping,
// sequence allocation over its own storage, error normalisation and
// paginator construction. Concrete adapters embed Base and Bind
// themselves after construction.
type Base struct {
	flavour string
	self    Adapter
	seqs    *sequence.Allocator
}

// NewBase creates the shared adapter core for a flavour
func NewBase(flavour string) Base {
	return Base{flavour: flavour}
}

// Bind wires the embedding adapter so Base can reach its CRUD surface
func (b *Base) Bind(self Adapter) {
	b.self = self
	b.seqs = sequence.NewAllocator(&seqStore{adapter: self})
}

// Flavour returns the registered flavour string
func (b *Base) Flavour() string {
	return b.flavour
}

// Flags completes a partial flag bag, stamping a fresh UUID
func (b *Base) Flags(op model.Operation, table string, partial map[string]interface{}) Flags {
	return NewFlags(op, table, partial)
}

// Sequence returns a handle over a named sequence stored in this adapter
func (b *Base) Sequence(opts sequence.Options) (sequence.Sequence, error) {
	return b.seqs.Sequence(opts)
}

// ParseError passes canonical errors through and wraps everything else
// as Internal so repositories always see the framework taxonomy.
func (b *Base) ParseError(err error) error {
	if err == nil {
		return nil
	}
	var fe *errors.FrameworkError
	if stderrors.As(err, &fe) {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Wrap(errors.KindInternal, err, "%s adapter", b.flavour)
}

// Paginator builds a pager executing against this adapter
func (b *Base) Paginator(stmt *query.Statement, size int) (*query.Paginator, error) {
	return query.NewPaginator(stmt, size, b.self)
}

// seqStore persists sequence records through the adapter's own CRUD
// surface; sequences are entities like any other.
type seqStore struct {
	adapter Adapter
}

func (s *seqStore) Load(ctx context.Context, name string) (map[string]interface{}, error) {
	return s.adapter.Read(ctx, sequenceTable, name)
}

func (s *seqStore) Save(ctx context.Context, name string, record map[string]interface{}) error {
	_, err := s.adapter.Update(ctx, sequenceTable, name, record)
	if errors.IsNotFound(err) {
		_, err = s.adapter.Create(ctx, sequenceTable, name, record)
	}
	return err
}
