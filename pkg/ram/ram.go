package ram

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/strata/pkg/adapter"
	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/lock"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/model"
	"github.com/cuemby/strata/pkg/query"
)

// Flavour is the registry tag of the in-memory adapter
const Flavour = "ram"

type table struct {
	rows  map[string]adapter.Record
	order []string // insertion order, ties in sorts resolve to it
}

// Adapter is the reference in-memory implementation: nested keyed maps
// guarded by a single advisory lock for mutations. Reads take no
// advisory lock.
type Adapter struct {
	adapter.Base

	mu     sync.RWMutex // structural safety for concurrent readers
	gate   *lock.Lock   // advisory lock serialising mutations
	keys   *lock.MultiLock
	tables map[string]*table
	logger zerolog.Logger
}

// New creates and binds an in-memory adapter
func New() *Adapter {
	a := &Adapter{
		Base:   adapter.NewBase(Flavour),
		gate:   lock.NewLock(),
		keys:   lock.NewMultiLock(),
		tables: make(map[string]*table),
		logger: log.WithComponent("ram"),
	}
	a.Bind(a)
	return a
}

// KeyLock exposes the per-key multi-lock callers use for exclusive
// access to one key across several operations.
func (a *Adapter) KeyLock() *lock.MultiLock {
	return a.keys
}

// Initialize is a no-op for the in-memory adapter
func (a *Adapter) Initialize(ctx context.Context) error { return nil }

// Shutdown drops all tables
func (a *Adapter) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tables = make(map[string]*table)
	return nil
}

// Reset clears storage between tests
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tables = make(map[string]*table)
}

func (a *Adapter) tableFor(name string, create bool) *table {
	t, ok := a.tables[name]
	if !ok && create {
		t = &table{rows: make(map[string]adapter.Record)}
		a.tables[name] = t
	}
	return t
}

// Create stores a new record, failing with Conflict when id exists
func (a *Adapter) Create(ctx context.Context, tbl, id string, record adapter.Record) (adapter.Record, error) {
	flags := a.Flags(model.OpCreate, tbl, nil)
	timer := metrics.NewTimer()
	var out adapter.Record
	err := a.gate.Execute(ctx, func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		t := a.tableFor(tbl, true)
		if _, exists := t.rows[id]; exists {
			return errors.Conflict(tbl, id)
		}
		t.rows[id] = cloneRecord(record)
		t.order = append(t.order, id)
		out = cloneRecord(record)
		return nil
	})
	observe("create", timer, err)
	if err != nil {
		return nil, a.ParseError(err)
	}
	a.logger.Debug().Str("table", tbl).Str("id", id).Str("op_uuid", flags.UUID).Msg("record created")
	return out, nil
}

// Read returns a stored record, failing with NotFound when id is absent
func (a *Adapter) Read(ctx context.Context, tbl, id string) (adapter.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t := a.tableFor(tbl, false)
	if t == nil {
		return nil, errors.NotFound(tbl, id)
	}
	rec, ok := t.rows[id]
	if !ok {
		return nil, errors.NotFound(tbl, id)
	}
	return cloneRecord(rec), nil
}

// Update replaces a stored record, failing with NotFound when absent
func (a *Adapter) Update(ctx context.Context, tbl, id string, record adapter.Record) (adapter.Record, error) {
	flags := a.Flags(model.OpUpdate, tbl, nil)
	timer := metrics.NewTimer()
	var out adapter.Record
	err := a.gate.Execute(ctx, func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		t := a.tableFor(tbl, false)
		if t == nil {
			return errors.NotFound(tbl, id)
		}
		if _, ok := t.rows[id]; !ok {
			return errors.NotFound(tbl, id)
		}
		t.rows[id] = cloneRecord(record)
		out = cloneRecord(record)
		return nil
	})
	observe("update", timer, err)
	if err != nil {
		return nil, a.ParseError(err)
	}
	a.logger.Debug().Str("table", tbl).Str("id", id).Str("op_uuid", flags.UUID).Msg("record updated")
	return out, nil
}

// Delete removes and returns a stored record
func (a *Adapter) Delete(ctx context.Context, tbl, id string) (adapter.Record, error) {
	flags := a.Flags(model.OpDelete, tbl, nil)
	timer := metrics.NewTimer()
	var out adapter.Record
	err := a.gate.Execute(ctx, func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		t := a.tableFor(tbl, false)
		if t == nil {
			return errors.NotFound(tbl, id)
		}
		rec, ok := t.rows[id]
		if !ok {
			return errors.NotFound(tbl, id)
		}
		delete(t.rows, id)
		for i, k := range t.order {
			if k == id {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
		out = rec
		return nil
	})
	observe("delete", timer, err)
	if err != nil {
		return nil, a.ParseError(err)
	}
	a.logger.Debug().Str("table", tbl).Str("id", id).Str("op_uuid", flags.UUID).Msg("record deleted")
	return out, nil
}

func cloneRecord(rec adapter.Record) adapter.Record {
	out := make(adapter.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// pkColumn resolves the column the materialised id is exposed under
func pkColumn(tbl string) string {
	if m, ok := model.LookupTable(tbl); ok {
		return m.PK.Column
	}
	return "id"
}

// materialise snapshots a table's records in insertion order with the id
// inlined under the pk column.
func (a *Adapter) materialise(tbl string) []adapter.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t := a.tableFor(tbl, false)
	if t == nil {
		return nil
	}
	col := pkColumn(tbl)
	out := make([]adapter.Record, 0, len(t.order))
	for _, id := range t.order {
		rec := cloneRecord(t.rows[id])
		rec[col] = id
		out = append(out, rec)
	}
	return out
}

// Raw interprets a compiled plan over the keyed maps: filter, stable
// sort, slice, project, then reduce.
func (a *Adapter) Raw(ctx context.Context, plan *query.Plan) (interface{}, error) {
	records := a.materialise(plan.From)

	if plan.Where != nil {
		pred, err := plan.Where.Compile()
		if err != nil {
			return nil, a.ParseError(err)
		}
		kept := records[:0]
		for _, rec := range records {
			ok, err := pred(rec)
			if err != nil {
				return nil, a.ParseError(err)
			}
			if ok {
				kept = append(kept, rec)
			}
		}
		records = kept
	}

	if len(plan.Sort) > 0 {
		if err := query.SortRecords(records, plan.Sort); err != nil {
			return nil, a.ParseError(err)
		}
	}

	records = plan.Slice(records)

	if plan.Aggregate != nil {
		res, err := plan.Reduce(records)
		if err != nil {
			return nil, a.ParseError(err)
		}
		return res, nil
	}

	return plan.Project(records), nil
}

// NamedAggregate executes a squashed trivial aggregation natively
func (a *Adapter) NamedAggregate(ctx context.Context, method, from, attr string) (interface{}, error) {
	var kind query.AggKind
	switch method {
	case "countOf":
		kind = query.AggCount
	case "minOf":
		kind = query.AggMin
	case "maxOf":
		kind = query.AggMax
	case "sumOf":
		kind = query.AggSum
	case "avgOf":
		kind = query.AggAvg
	case "distinctOf":
		kind = query.AggDistinct
	default:
		return nil, errors.Unsupported("named aggregate " + method)
	}
	return a.Raw(ctx, &query.Plan{
		From:      from,
		Limit:     -1,
		Aggregate: &query.Aggregate{Kind: kind, Field: attr},
	})
}

func init() {
	// the reference adapter is always available
	adapter.Register(New())
}

// observe records one adapter operation in the metrics surface
func observe(op string, timer *metrics.Timer, err error) {
	metrics.AdapterOperationsTotal.WithLabelValues(Flavour, op).Inc()
	timer.ObserveDurationVec(metrics.AdapterOperationDuration, Flavour, op)
	if err != nil {
		metrics.AdapterErrorsTotal.WithLabelValues(Flavour, string(errors.KindOf(err))).Inc()
	}
}
