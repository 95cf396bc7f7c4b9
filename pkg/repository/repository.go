package repository

import (
	"context"

	"github.com/cuemby/strata/pkg/adapter"
	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/model"
	"github.com/cuemby/strata/pkg/query"
)

// Config overrides a repository's call environment. Zero fields keep
// the current values.
type Config struct {
	User    string
	Flavour string
}

// Repository is the per-entity facade over an adapter. It applies
// operation guards, before/after hooks, relation cascades, observer
// notifications and bulk semantics around the adapter's primitives.
type Repository[T any] struct {
	c *core
}

// New resolves the repository for T's registered metadata and flavour
func New[T any]() (*Repository[T], error) {
	var zero T
	typ := model.TypeOf(&zero)
	c, err := coreFor(typ, "")
	if err != nil {
		return nil, err
	}
	return &Repository[T]{c: c}, nil
}

// With returns a decorated repository sharing the underlying storage
// handle, with the configuration overrides applied.
func (r *Repository[T]) With(cfg Config) (*Repository[T], error) {
	c, err := r.c.withConfig(cfg.User, cfg.Flavour)
	if err != nil {
		return nil, err
	}
	return &Repository[T]{c: c}, nil
}

// Adapter exposes the bound adapter instance
func (r *Repository[T]) Adapter() adapter.Adapter {
	return r.c.ad
}

// Table returns the entity's table name
func (r *Repository[T]) Table() string {
	return r.c.meta.Table
}

func (r *Repository[T]) toT(v interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	t, ok := v.(*T)
	if !ok {
		return nil, errors.New(errors.KindInternal, "%s: unexpected instance type %T", r.c.meta.Table, v)
	}
	return t, nil
}

func (r *Repository[T]) toTs(vs []interface{}, err error) ([]*T, error) {
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(vs))
	for _, v := range vs {
		t, err := r.toT(v, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// serialise renders any supported id value as the adapter-boundary key
func (r *Repository[T]) serialise(id interface{}) (string, error) {
	return adapter.SerialiseID(r.c.meta.PK.Kind, id)
}

// Create persists a new entity, returning the stored instance with
// server-populated fields filled in.
func (r *Repository[T]) Create(ctx context.Context, instance *T) (*T, error) {
	return r.toT(r.c.create(ctx, instance))
}

// Read loads an entity by primary key
func (r *Repository[T]) Read(ctx context.Context, id interface{}) (*T, error) {
	key, err := r.serialise(id)
	if err != nil {
		return nil, err
	}
	return r.toT(r.c.read(ctx, key))
}

// Update rewrites an entity addressed by its current primary key
func (r *Repository[T]) Update(ctx context.Context, instance *T) (*T, error) {
	return r.toT(r.c.update(ctx, instance))
}

// Delete removes an entity by primary key, cascading per its relations
func (r *Repository[T]) Delete(ctx context.Context, id interface{}) (*T, error) {
	key, err := r.serialise(id)
	if err != nil {
		return nil, err
	}
	return r.toT(r.c.del(ctx, key))
}

// CreateAll persists a batch, rolling back on the first failure
func (r *Repository[T]) CreateAll(ctx context.Context, instances []*T) ([]*T, error) {
	return r.toTs(r.c.createAll(ctx, toAny(instances)))
}

// ReadAll loads a batch of ids
func (r *Repository[T]) ReadAll(ctx context.Context, ids []interface{}) ([]*T, error) {
	keys, err := r.serialiseAll(ids)
	if err != nil {
		return nil, err
	}
	return r.toTs(r.c.readAll(ctx, keys))
}

// UpdateAll rewrites a batch, rolling back on the first failure
func (r *Repository[T]) UpdateAll(ctx context.Context, instances []*T) ([]*T, error) {
	return r.toTs(r.c.updateAll(ctx, toAny(instances)))
}

// DeleteAll removes a batch, recreating already-deleted rows on failure
func (r *Repository[T]) DeleteAll(ctx context.Context, ids []interface{}) ([]*T, error) {
	keys, err := r.serialiseAll(ids)
	if err != nil {
		return nil, err
	}
	return r.toTs(r.c.deleteAll(ctx, keys))
}

func (r *Repository[T]) serialiseAll(ids []interface{}) ([]string, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		key, err := r.serialise(id)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func toAny[T any](instances []*T) []interface{} {
	out := make([]interface{}, len(instances))
	for i, instance := range instances {
		out[i] = instance
	}
	return out
}

// Statement starts a fluent query over the entity's table
func (r *Repository[T]) Statement() *query.Statement {
	return query.From(r.c.meta.Table)
}

// revertRows turns raw result rows back into model instances
func (r *Repository[T]) revertRows(rows []map[string]interface{}) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		id, err := adapter.SerialiseID(r.c.meta.PK.Kind, row[r.c.meta.PK.Column])
		if err != nil {
			return nil, err
		}
		v, err := adapter.Revert(r.c.meta, row, id)
		if err != nil {
			return nil, err
		}
		t, err := r.toT(v, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ExecuteInto runs a statement and reverts its result set to instances
func (r *Repository[T]) ExecuteInto(ctx context.Context, stmt *query.Statement) ([]*T, error) {
	if err := r.c.guard(model.OpRead); err != nil {
		return nil, err
	}
	res, err := stmt.Execute(ctx, r.c.ad)
	if err != nil {
		return nil, err
	}
	rows, ok := res.([]map[string]interface{})
	if !ok {
		return nil, errors.New(errors.KindQuery, "%s: statement did not produce a result set", r.c.meta.Table)
	}
	return r.revertRows(rows)
}

// Select loads entities matching cond, ordered by the given clauses
func (r *Repository[T]) Select(ctx context.Context, cond *query.Condition, orders ...query.Order) ([]*T, error) {
	stmt := r.Statement()
	if cond != nil {
		stmt.Where(cond)
	}
	for _, o := range orders {
		stmt.OrderBy(o.Field, o.Dir)
	}
	return r.ExecuteInto(ctx, stmt)
}

func (r *Repository[T]) aggregate(ctx context.Context, kind query.AggKind, field string, cond *query.Condition) (interface{}, error) {
	if err := r.c.guard(model.OpRead); err != nil {
		return nil, err
	}
	stmt := r.Statement()
	if cond != nil {
		stmt.Where(cond)
	}
	switch kind {
	case query.AggCount:
		stmt.Count(field)
	case query.AggMin:
		stmt.Min(field)
	case query.AggMax:
		stmt.Max(field)
	case query.AggSum:
		stmt.Sum(field)
	case query.AggAvg:
		stmt.Avg(field)
	case query.AggDistinct:
		stmt.Distinct(field)
	}
	return stmt.Execute(ctx, r.c.ad)
}

// Count returns how many entities match cond (all when nil)
func (r *Repository[T]) Count(ctx context.Context, cond *query.Condition) (int64, error) {
	res, err := r.aggregate(ctx, query.AggCount, "", cond)
	if err != nil {
		return 0, err
	}
	n, ok := res.(int64)
	if !ok {
		return 0, errors.New(errors.KindQuery, "%s: count produced %T", r.c.meta.Table, res)
	}
	return n, nil
}

// Min returns the smallest value of a column among matching entities
func (r *Repository[T]) Min(ctx context.Context, field string, cond *query.Condition) (interface{}, error) {
	return r.aggregate(ctx, query.AggMin, field, cond)
}

// Max returns the largest value of a column among matching entities
func (r *Repository[T]) Max(ctx context.Context, field string, cond *query.Condition) (interface{}, error) {
	return r.aggregate(ctx, query.AggMax, field, cond)
}

// Sum totals a numeric column over matching entities
func (r *Repository[T]) Sum(ctx context.Context, field string, cond *query.Condition) (interface{}, error) {
	return r.aggregate(ctx, query.AggSum, field, cond)
}

// Avg averages a numeric column over matching entities
func (r *Repository[T]) Avg(ctx context.Context, field string, cond *query.Condition) (interface{}, error) {
	return r.aggregate(ctx, query.AggAvg, field, cond)
}

// Distinct returns the distinct values of a column
func (r *Repository[T]) Distinct(ctx context.Context, field string, cond *query.Condition) (interface{}, error) {
	return r.aggregate(ctx, query.AggDistinct, field, cond)
}

// Group partitions matching entities by the given columns
func (r *Repository[T]) Group(ctx context.Context, cond *query.Condition, fields ...string) (interface{}, error) {
	if err := r.c.guard(model.OpRead); err != nil {
		return nil, err
	}
	stmt := r.Statement()
	if cond != nil {
		stmt.Where(cond)
	}
	for _, f := range fields {
		stmt.GroupBy(f)
	}
	stmt.Group()
	return stmt.Execute(ctx, r.c.ad)
}

// PaginateBy builds a paginator over a statement
func (r *Repository[T]) PaginateBy(stmt *query.Statement, size int) (*query.Paginator, error) {
	return r.c.ad.Paginator(stmt, size)
}

// Observe registers a change observer
func (r *Repository[T]) Observe(o Observer) { r.c.Observe(o) }

// UnObserve removes a change observer
func (r *Repository[T]) UnObserve(o Observer) { r.c.UnObserve(o) }
