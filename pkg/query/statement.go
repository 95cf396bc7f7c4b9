package query

import (
	"context"
	"strings"

	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/model"
)

// RawExecutor runs a compiled plan. Adapters implement it.
type RawExecutor interface {
	Raw(ctx context.Context, plan *Plan) (interface{}, error)
}

// NamedExecutor is implemented by adapters that execute trivial
// aggregations natively; squashed statements call it instead of Raw.
type NamedExecutor interface {
	NamedAggregate(ctx context.Context, method, from, attr string) (interface{}, error)
}

type openClause int

const (
	clauseNone openClause = iota
	clauseOrder
	clauseGroup
)

// Statement is a fluent query builder. Composition never mutates an
// emitted plan; Build compiles a fresh Plan every call.
type Statement struct {
	from    string
	selects []string
	where   *Condition
	orders  []Order
	groups  []string
	limit   int
	offset  int
	agg     *Aggregate
	open    openClause
	err     error
}

// From starts a statement over a table
func From(table string) *Statement {
	return &Statement{from: table, limit: -1}
}

// Select restricts the projected columns
func (s *Statement) Select(columns ...string) *Statement {
	s.selects = append(s.selects, columns...)
	return s
}

// Where sets the filter condition; a second call conjoins
func (s *Statement) Where(cond *Condition) *Statement {
	if s.where == nil {
		s.where = cond
	} else {
		s.where = s.where.And(cond)
	}
	return s
}

// OrderBy appends a sort clause and opens the order list for ThenBy
func (s *Statement) OrderBy(field string, dir model.Direction) *Statement {
	s.orders = append(s.orders, Order{Field: field, Dir: dir})
	s.open = clauseOrder
	return s
}

// GroupBy appends a grouping and opens the group list for ThenBy.
// Grouping after ordering is malformed.
func (s *Statement) GroupBy(field string) *Statement {
	if len(s.orders) > 0 {
		s.fail(errors.New(errors.KindQuery, "groupBy cannot follow orderBy"))
		return s
	}
	s.groups = append(s.groups, field)
	s.open = clauseGroup
	return s
}

// ThenBy extends whichever clause list is open
func (s *Statement) ThenBy(field string, dir ...model.Direction) *Statement {
	switch s.open {
	case clauseOrder:
		d := model.Asc
		if len(dir) > 0 {
			d = dir[0]
		}
		s.orders = append(s.orders, Order{Field: field, Dir: d})
	case clauseGroup:
		s.groups = append(s.groups, field)
	default:
		s.fail(errors.New(errors.KindQuery, "thenBy needs a preceding orderBy or groupBy"))
	}
	return s
}

// Limit bounds the result size
func (s *Statement) Limit(n int) *Statement {
	s.limit = n
	return s
}

// Offset skips the first n results
func (s *Statement) Offset(n int) *Statement {
	s.offset = n
	return s
}

// Terminal aggregate selectors

func (s *Statement) Count(field string) *Statement    { return s.aggregate(AggCount, field) }
func (s *Statement) Min(field string) *Statement      { return s.aggregate(AggMin, field) }
func (s *Statement) Max(field string) *Statement      { return s.aggregate(AggMax, field) }
func (s *Statement) Sum(field string) *Statement      { return s.aggregate(AggSum, field) }
func (s *Statement) Avg(field string) *Statement      { return s.aggregate(AggAvg, field) }
func (s *Statement) Distinct(field string) *Statement { return s.aggregate(AggDistinct, field) }
func (s *Statement) Group() *Statement                { return s.aggregate(AggGroup, "") }

func (s *Statement) aggregate(kind AggKind, field string) *Statement {
	if s.agg != nil {
		s.fail(errors.New(errors.KindQuery, "aggregate %q already set", s.agg.Kind))
		return s
	}
	s.agg = &Aggregate{Kind: kind, Field: field}
	return s
}

func (s *Statement) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Build compiles the statement into a raw plan
func (s *Statement) Build() (*Plan, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.from == "" {
		return nil, errors.New(errors.KindQuery, "statement has no source table")
	}
	return &Plan{
		From:      s.from,
		Where:     s.where,
		Sort:      append([]Order(nil), s.orders...),
		Skip:      s.offset,
		Limit:     s.limit,
		Select:    append([]string(nil), s.selects...),
		GroupBy:   append([]string(nil), s.groups...),
		Aggregate: s.agg,
	}, nil
}

// squashable reports whether a trivial aggregation can be rewritten to a
// direct adapter method call: a terminal aggregate with no condition and
// at most a single implicit grouping.
func (s *Statement) squashable() bool {
	return s.agg != nil && s.agg.Kind != AggGroup &&
		s.where == nil && len(s.groups) == 0 &&
		len(s.orders) == 0 && s.limit < 0 && s.offset == 0
}

// SquashedMethod returns the adapter method a squashable statement maps
// to, e.g. countOf, maxOf.
func (s *Statement) SquashedMethod() string {
	if s.agg == nil {
		return ""
	}
	return string(s.agg.Kind) + "Of"
}

// Execute compiles and runs the statement. Squashable aggregates are
// delegated to the adapter's named method when the backend implements it.
func (s *Statement) Execute(ctx context.Context, exec RawExecutor) (interface{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.squashable() {
		if named, ok := exec.(NamedExecutor); ok {
			return named.NamedAggregate(ctx, s.SquashedMethod(), s.from, s.agg.Field)
		}
	}
	plan, err := s.Build()
	if err != nil {
		return nil, err
	}
	return exec.Raw(ctx, plan)
}

// Prepare emits the deterministic method name identifying this statement
// as a backend-stored plan: <action>By<Conds><GroupByClauses><OrderByClauses>.
func (s *Statement) Prepare() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	action := "find"
	if s.agg != nil {
		action = string(s.agg.Kind)
	}
	var b strings.Builder
	b.WriteString(action)
	b.WriteString("By")
	if s.agg != nil && s.agg.Field != "" {
		b.WriteString(upperCamel(s.agg.Field))
		if s.where != nil {
			b.WriteString("And")
		}
	}
	b.WriteString(s.where.describe())
	for i, g := range s.groups {
		if i == 0 {
			b.WriteString("GroupBy")
		} else {
			b.WriteString("ThenBy")
		}
		b.WriteString(upperCamel(g))
	}
	for i, o := range s.orders {
		if i == 0 {
			b.WriteString("OrderBy")
		} else {
			b.WriteString("ThenBy")
		}
		b.WriteString(upperCamel(o.Field))
		if o.Dir == model.Desc {
			b.WriteString("Desc")
		}
	}
	return b.String(), nil
}
