package query

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/model"
)

// AggKind identifies a terminal aggregate selector
type AggKind string

const (
	AggCount    AggKind = "count"
	AggMin      AggKind = "min"
	AggMax      AggKind = "max"
	AggSum      AggKind = "sum"
	AggAvg      AggKind = "avg"
	AggDistinct AggKind = "distinct"
	AggGroup    AggKind = "group"
)

// Order is one sort clause of a plan
type Order struct {
	Field string
	Dir   model.Direction
}

// Aggregate is the terminal aggregation of a plan
type Aggregate struct {
	Kind  AggKind
	Field string
}

// Plan is the compiled form of a statement, interpreted by Adapter.Raw.
// Limit < 0 means unbounded.
type Plan struct {
	From      string
	Where     *Condition
	Sort      []Order
	Skip      int
	Limit     int
	Select    []string
	GroupBy   []string
	Aggregate *Aggregate
}

// SortRecords stable-sorts records by the plan's order clauses. Ties keep
// insertion order. Nulls sort last ascending and first descending; a type
// mismatch between two sort keys fails the query.
func SortRecords(records []map[string]interface{}, orders []Order) error {
	var sortErr error
	sort.SliceStable(records, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		for _, o := range orders {
			a, b := records[i][o.Field], records[j][o.Field]
			if a == nil || b == nil {
				if a == nil && b == nil {
					continue
				}
				// nil ranks after values ascending, before them descending
				if o.Dir == model.Desc {
					return a == nil && b != nil
				}
				return b == nil && a != nil
			}
			cmp, err := Compare(a, b)
			if err != nil {
				sortErr = err
				return false
			}
			if cmp == 0 {
				continue
			}
			if o.Dir == model.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return sortErr
}

// Slice applies the plan's skip/limit window
func (p *Plan) Slice(records []map[string]interface{}) []map[string]interface{} {
	start := p.Skip
	if start < 0 {
		start = 0
	}
	if start > len(records) {
		return nil
	}
	end := len(records)
	if p.Limit >= 0 && start+p.Limit < end {
		end = start + p.Limit
	}
	return records[start:end]
}

// Project reduces records to the selected columns
func (p *Plan) Project(records []map[string]interface{}) []map[string]interface{} {
	if len(p.Select) == 0 {
		return records
	}
	out := make([]map[string]interface{}, len(records))
	for i, rec := range records {
		row := make(map[string]interface{}, len(p.Select))
		for _, col := range p.Select {
			row[col] = rec[col]
		}
		out[i] = row
	}
	return out
}

// Reduce evaluates the plan's aggregate over the (already filtered and
// sorted) records. Grouped plans return map[group-key]result.
func (p *Plan) Reduce(records []map[string]interface{}) (interface{}, error) {
	agg := p.Aggregate
	if agg == nil {
		return records, nil
	}
	if len(p.GroupBy) > 0 {
		return p.reduceGrouped(records)
	}
	return reduceFlat(agg, records)
}

func (p *Plan) reduceGrouped(records []map[string]interface{}) (interface{}, error) {
	groups := make(map[string][]map[string]interface{})
	var keys []string
	for _, rec := range records {
		key := groupKey(rec, p.GroupBy)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], rec)
	}
	out := make(map[string]interface{}, len(groups))
	for _, key := range keys {
		if p.Aggregate.Kind == AggGroup {
			out[key] = groups[key]
			continue
		}
		v, err := reduceFlat(p.Aggregate, groups[key])
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func groupKey(rec map[string]interface{}, fields []string) string {
	key := ""
	for i, f := range fields {
		if i > 0 {
			key += "|"
		}
		key += stringify(rec[f])
	}
	return key
}

func reduceFlat(agg *Aggregate, records []map[string]interface{}) (interface{}, error) {
	switch agg.Kind {
	case AggCount:
		return int64(len(records)), nil
	case AggDistinct:
		seen := make(map[string]bool)
		var out []interface{}
		for _, rec := range records {
			v := rec[agg.Field]
			k := stringify(v)
			if !seen[k] {
				seen[k] = true
				out = append(out, v)
			}
		}
		return out, nil
	case AggMin, AggMax:
		var best interface{}
		for _, rec := range records {
			v := rec[agg.Field]
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			cmp, err := Compare(v, best)
			if err != nil {
				return nil, err
			}
			if (agg.Kind == AggMin && cmp < 0) || (agg.Kind == AggMax && cmp > 0) {
				best = v
			}
		}
		return best, nil
	case AggSum, AggAvg:
		var sum float64
		var n int
		for _, rec := range records {
			v, ok := asFloat(rec[agg.Field])
			if !ok {
				if rec[agg.Field] == nil {
					continue
				}
				return nil, errors.New(errors.KindQuery, "cannot %s non-numeric column %q", agg.Kind, agg.Field)
			}
			sum += v
			n++
		}
		if agg.Kind == AggAvg {
			if n == 0 {
				return float64(0), nil
			}
			return sum / float64(n), nil
		}
		return sum, nil
	case AggGroup:
		return records, nil
	}
	return nil, errors.New(errors.KindQuery, "unknown aggregate %q", agg.Kind)
}

func stringify(v interface{}) string {
	if v == nil {
		return "<nil>"
	}
	if s, ok := v.(string); ok {
		return s
	}
	if f, ok := asFloat(v); ok && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return fmt.Sprint(v)
}
