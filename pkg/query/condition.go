package query

import (
	"fmt"
	"math/big"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/cuemby/strata/pkg/errors"
)

// Op is a primitive comparison operator. In and Between are primitive on
// purpose so adapters can translate them natively instead of receiving a
// de-sugared or-chain.
type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpLt      Op = "lt"
	OpLe      Op = "le"
	OpGt      Op = "gt"
	OpGe      Op = "ge"
	OpRegexp  Op = "regexp"
	OpIn      Op = "in"
	OpBetween Op = "between"
)

type nodeKind int

const (
	nodeLeaf nodeKind = iota
	nodeAnd
	nodeOr
	nodeNot
)

// Condition is a recursive algebraic condition tree
type Condition struct {
	kind nodeKind

	// leaf
	attr   string
	op     Op
	value  interface{}
	values []interface{} // in
	lo, hi interface{}   // between

	left, right *Condition
}

// Attribute starts a condition on a named attribute
type Attribute struct {
	name string
}

// Attr references a stored column by name
func Attr(name string) Attribute {
	return Attribute{name: name}
}

func (a Attribute) leaf(op Op, value interface{}) *Condition {
	return &Condition{kind: nodeLeaf, attr: a.name, op: op, value: value}
}

func (a Attribute) Eq(v interface{}) *Condition      { return a.leaf(OpEq, v) }
func (a Attribute) Ne(v interface{}) *Condition      { return a.leaf(OpNe, v) }
func (a Attribute) Lt(v interface{}) *Condition      { return a.leaf(OpLt, v) }
func (a Attribute) Le(v interface{}) *Condition      { return a.leaf(OpLe, v) }
func (a Attribute) Gt(v interface{}) *Condition      { return a.leaf(OpGt, v) }
func (a Attribute) Ge(v interface{}) *Condition      { return a.leaf(OpGe, v) }
func (a Attribute) Regexp(expr string) *Condition    { return a.leaf(OpRegexp, expr) }
func (a Attribute) True() *Condition                 { return a.leaf(OpEq, true) }
func (a Attribute) False() *Condition                { return a.leaf(OpEq, false) }

// In matches any of the given values
func (a Attribute) In(values ...interface{}) *Condition {
	return &Condition{kind: nodeLeaf, attr: a.name, op: OpIn, values: values}
}

// Between matches values in the closed range [lo, hi]
func (a Attribute) Between(lo, hi interface{}) *Condition {
	return &Condition{kind: nodeLeaf, attr: a.name, op: OpBetween, lo: lo, hi: hi}
}

// And combines two conditions conjunctively
func (c *Condition) And(other *Condition) *Condition {
	return &Condition{kind: nodeAnd, left: c, right: other}
}

// Or combines two conditions disjunctively
func (c *Condition) Or(other *Condition) *Condition {
	return &Condition{kind: nodeOr, left: c, right: other}
}

// Not negates a condition
func (c *Condition) Not() *Condition {
	return &Condition{kind: nodeNot, left: c}
}

// Attr exposes the attribute of a leaf condition
func (c *Condition) Attr() string { return c.attr }

// Operator exposes the operator of a leaf condition
func (c *Condition) Operator() Op { return c.op }

// Predicate evaluates a stored record
type Predicate func(record map[string]interface{}) (bool, error)

// Compile translates the condition tree into an in-memory predicate in a
// single traversal. Regular expressions are compiled here, not per record.
func (c *Condition) Compile() (Predicate, error) {
	if c == nil {
		return func(map[string]interface{}) (bool, error) { return true, nil }, nil
	}
	switch c.kind {
	case nodeAnd:
		l, err := c.left.Compile()
		if err != nil {
			return nil, err
		}
		r, err := c.right.Compile()
		if err != nil {
			return nil, err
		}
		return func(rec map[string]interface{}) (bool, error) {
			ok, err := l(rec)
			if err != nil || !ok {
				return false, err
			}
			return r(rec)
		}, nil
	case nodeOr:
		l, err := c.left.Compile()
		if err != nil {
			return nil, err
		}
		r, err := c.right.Compile()
		if err != nil {
			return nil, err
		}
		return func(rec map[string]interface{}) (bool, error) {
			ok, err := l(rec)
			if err != nil || ok {
				return ok, err
			}
			return r(rec)
		}, nil
	case nodeNot:
		l, err := c.left.Compile()
		if err != nil {
			return nil, err
		}
		return func(rec map[string]interface{}) (bool, error) {
			ok, err := l(rec)
			return !ok, err
		}, nil
	}
	return c.compileLeaf()
}

func (c *Condition) compileLeaf() (Predicate, error) {
	attr := c.attr
	switch c.op {
	case OpRegexp:
		expr, ok := c.value.(string)
		if !ok {
			return nil, errors.New(errors.KindQuery, "regexp condition on %q needs a string pattern", attr)
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, errors.Wrap(errors.KindQuery, err, "regexp condition on %q", attr)
		}
		return func(rec map[string]interface{}) (bool, error) {
			s, ok := rec[attr].(string)
			if !ok {
				return false, nil
			}
			return re.MatchString(s), nil
		}, nil
	case OpIn:
		values := c.values
		return func(rec map[string]interface{}) (bool, error) {
			for _, v := range values {
				cmp, err := Compare(rec[attr], v)
				if err == nil && cmp == 0 {
					return true, nil
				}
			}
			return false, nil
		}, nil
	case OpBetween:
		lo, hi := c.lo, c.hi
		return func(rec map[string]interface{}) (bool, error) {
			a, err := Compare(rec[attr], lo)
			if err != nil {
				return false, err
			}
			b, err := Compare(rec[attr], hi)
			if err != nil {
				return false, err
			}
			return a >= 0 && b <= 0, nil
		}, nil
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		op := c.op
		want := c.value
		return func(rec map[string]interface{}) (bool, error) {
			cmp, err := Compare(rec[attr], want)
			if err != nil {
				// Equality against mismatched types is just false;
				// ordering against them fails the query.
				if op == OpEq {
					return false, nil
				}
				if op == OpNe {
					return true, nil
				}
				return false, err
			}
			switch op {
			case OpEq:
				return cmp == 0, nil
			case OpNe:
				return cmp != 0, nil
			case OpLt:
				return cmp < 0, nil
			case OpLe:
				return cmp <= 0, nil
			case OpGt:
				return cmp > 0, nil
			case OpGe:
				return cmp >= 0, nil
			}
			return false, nil
		}, nil
	}
	return nil, errors.New(errors.KindQuery, "unknown operator %q", c.op)
}

// Compare orders two stored values: strings lexicographically, numbers
// numerically, bigints via big.Int ordering, booleans with true > false,
// dates via timestamp. Mismatched types fail the query; nil placement is
// the sorter's concern, not Compare's.
func Compare(a, b interface{}) (int, error) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, nil
		}
		return 0, errors.New(errors.KindQuery, "cannot order nil against a value")
	}

	if na, aok := asFloat(a); aok {
		if nb, bok := asFloat(b); bok {
			switch {
			case na < nb:
				return -1, nil
			case na > nb:
				return 1, nil
			}
			return 0, nil
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), nil
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, nil
			case av:
				return 1, nil
			}
			return -1, nil
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), nil
		}
	case *big.Int:
		if bv, ok := b.(*big.Int); ok {
			return av.Cmp(bv), nil
		}
	}

	// Named string and bool types order like their underlying kind
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() == reflect.String && rb.Kind() == reflect.String {
		return strings.Compare(ra.String(), rb.String()), nil
	}
	if ra.Kind() == reflect.Bool && rb.Kind() == reflect.Bool {
		av, bv := ra.Bool(), rb.Bool()
		switch {
		case av == bv:
			return 0, nil
		case av:
			return 1, nil
		}
		return -1, nil
	}

	return 0, errors.New(errors.KindQuery, "cannot order %s against %s",
		reflect.TypeOf(a), reflect.TypeOf(b))
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// describe renders the condition into a prepared-name fragment, e.g.
// Age>18 becomes AgeGreaterThan.
func (c *Condition) describe() string {
	if c == nil {
		return ""
	}
	switch c.kind {
	case nodeAnd:
		return c.left.describe() + "And" + c.right.describe()
	case nodeOr:
		return c.left.describe() + "Or" + c.right.describe()
	case nodeNot:
		return "Not" + c.left.describe()
	}
	name := upperCamel(c.attr)
	switch c.op {
	case OpEq:
		if c.value == true {
			return name + "True"
		}
		if c.value == false {
			return name + "False"
		}
		return name + "Equals"
	case OpNe:
		return name + "NotEquals"
	case OpGt:
		return name + "GreaterThan"
	case OpGe:
		return name + "GreaterThanEqual"
	case OpLt:
		return name + "LessThan"
	case OpLe:
		return name + "LessThanEqual"
	case OpIn:
		return name + "In"
	case OpBetween:
		return name + "Between"
	case OpRegexp:
		return name + "Like"
	}
	return name
}

func upperCamel(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (c *Condition) String() string {
	if c == nil {
		return "<nil>"
	}
	switch c.kind {
	case nodeAnd:
		return fmt.Sprintf("(%s AND %s)", c.left, c.right)
	case nodeOr:
		return fmt.Sprintf("(%s OR %s)", c.left, c.right)
	case nodeNot:
		return fmt.Sprintf("NOT %s", c.left)
	case nodeLeaf:
		switch c.op {
		case OpIn:
			return fmt.Sprintf("%s in %v", c.attr, c.values)
		case OpBetween:
			return fmt.Sprintf("%s between [%v, %v]", c.attr, c.lo, c.hi)
		}
		return fmt.Sprintf("%s %s %v", c.attr, c.op, c.value)
	}
	return "?"
}
