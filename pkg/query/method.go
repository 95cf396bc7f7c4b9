package query

import (
	"strings"

	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/model"
)

// Action is the operation a parsed method name resolves to
type Action string

const (
	ActionFind     Action = "find"
	ActionPage     Action = "page"
	ActionCount    Action = "count"
	ActionSum      Action = "sum"
	ActionAvg      Action = "avg"
	ActionMin      Action = "min"
	ActionMax      Action = "max"
	ActionDistinct Action = "distinct"
	ActionGroup    Action = "group"
)

// prefixes in match order; longer prefixes first where one contains
// another is not a concern here.
var methodPrefixes = []struct {
	prefix string
	action Action
}{
	{"findBy", ActionFind},
	{"listBy", ActionFind},
	{"pageBy", ActionPage},
	{"countBy", ActionCount},
	{"sumBy", ActionSum},
	{"avgBy", ActionAvg},
	{"minBy", ActionMin},
	{"maxBy", ActionMax},
	{"distinctBy", ActionDistinct},
	{"groupBy", ActionGroup},
}

// operator suffixes, longest first so GreaterThanEqual wins over
// GreaterThan.
var opSuffixes = []struct {
	suffix string
	op     Op
	params int
}{
	{"GreaterThanEqual", OpGe, 1},
	{"LessThanEqual", OpLe, 1},
	{"GreaterThan", OpGt, 1},
	{"LessThan", OpLt, 1},
	{"NotEquals", OpNe, 1},
	{"Equals", OpEq, 1},
	{"Between", OpBetween, 2},
	{"False", OpEq, 0},
	{"True", OpEq, 0},
	{"Like", OpRegexp, 1},
	{"In", OpIn, 1},
}

// placeholder marks a condition value to be bound positionally
type placeholder struct {
	name string
}

// MethodPlan is the structured result of parsing a method-name query
type MethodPlan struct {
	Action   Action
	Selector string
	Where    *Condition
	GroupBy  []string
	OrderBy  []Order

	// Params lists, in declaration order, the names of the positional
	// value parameters the condition consumes. pageBy additionally
	// reserves two trailing call parameters (direction, page size).
	Params []string
}

// ParamCount returns how many positional values the plan's condition
// consumes (excluding pageBy's two reserved trailing parameters).
func (p *MethodPlan) ParamCount() int {
	return len(p.Params)
}

// ParseMethod parses an identifier such as
// findByAgeGreaterThanAndActiveGroupByCountryThenByCityOrderByAgeDesc
// into a structured plan. Unknown prefixes fail with Unsupported.
func ParseMethod(name string) (*MethodPlan, error) {
	var action Action
	var rest string
	matched := false
	for _, p := range methodPrefixes {
		if strings.HasPrefix(name, p.prefix) {
			action = p.action
			rest = name[len(p.prefix):]
			matched = true
			break
		}
	}
	if !matched {
		return nil, errors.New(errors.KindUnsupported, "method %q", name)
	}

	plan := &MethodPlan{Action: action}

	condPart, groupPart, orderPart := splitSections(rest)

	if err := parseConditions(plan, condPart); err != nil {
		return nil, err
	}
	if err := parseGroups(plan, groupPart); err != nil {
		return nil, err
	}
	if err := parseOrders(plan, orderPart); err != nil {
		return nil, err
	}
	return plan, nil
}

// splitSections slices the post-prefix remainder into condition, group
// and order sections.
func splitSections(rest string) (cond, group, order string) {
	cond = rest
	if i := strings.Index(cond, "OrderBy"); i >= 0 {
		order = cond[i+len("OrderBy"):]
		cond = cond[:i]
	}
	if i := strings.Index(cond, "GroupBy"); i >= 0 {
		group = cond[i+len("GroupBy"):]
		cond = cond[:i]
	}
	return cond, group, order
}

func parseConditions(plan *MethodPlan, part string) error {
	if part == "" {
		return nil
	}
	tokens, connectors := splitConnectors(part)

	start := 0
	if isAggregate(plan.Action) {
		// For aggregations the leading bare field (no operator suffix)
		// names the selector rather than a condition.
		if _, op, _, explicit := splitOp(tokens[0]); !explicit && op == OpEq {
			plan.Selector = model.LowerCamel(tokens[0])
			start = 1
		}
	}

	var cond *Condition
	for i := start; i < len(tokens); i++ {
		leaf, err := parseLeaf(plan, tokens[i])
		if err != nil {
			return err
		}
		if cond == nil {
			cond = leaf
			continue
		}
		// left-associative combination
		if connectors[i-1] == "Or" {
			cond = cond.Or(leaf)
		} else {
			cond = cond.And(leaf)
		}
	}
	plan.Where = cond
	return nil
}

func isAggregate(a Action) bool {
	switch a {
	case ActionCount, ActionSum, ActionAvg, ActionMin, ActionMax, ActionDistinct, ActionGroup:
		return true
	}
	return false
}

// splitConnectors cuts a condition section on top-level And/Or tokens.
// connectors[i] joins tokens[i] and tokens[i+1].
func splitConnectors(s string) (tokens []string, connectors []string) {
	cur := strings.Builder{}
	i := 0
	for i < len(s) {
		if hasConnectorAt(s, i, "And") {
			tokens = append(tokens, cur.String())
			connectors = append(connectors, "And")
			cur.Reset()
			i += 3
			continue
		}
		if hasConnectorAt(s, i, "Or") {
			tokens = append(tokens, cur.String())
			connectors = append(connectors, "Or")
			cur.Reset()
			i += 2
			continue
		}
		cur.WriteByte(s[i])
		i++
	}
	tokens = append(tokens, cur.String())
	return tokens, connectors
}

// hasConnectorAt reports a connector word at position i followed by an
// upper-case letter (the next field token) and not at the start.
func hasConnectorAt(s string, i int, word string) bool {
	if i == 0 || !strings.HasPrefix(s[i:], word) {
		return false
	}
	next := i + len(word)
	if next >= len(s) {
		return false
	}
	c := s[next]
	return c >= 'A' && c <= 'Z'
}

// splitOp strips the operator suffix off a field token. explicit is false
// when the token carried no suffix and Equals was assumed.
func splitOp(token string) (field string, op Op, params int, explicit bool) {
	for _, o := range opSuffixes {
		if strings.HasSuffix(token, o.suffix) && len(token) > len(o.suffix) {
			return token[:len(token)-len(o.suffix)], o.op, o.params, true
		}
	}
	return token, OpEq, 1, false
}

func parseLeaf(plan *MethodPlan, token string) (*Condition, error) {
	if token == "" {
		return nil, errors.New(errors.KindQuery, "empty condition token")
	}
	fieldToken, op, params, explicit := splitOp(token)
	field := model.LowerCamel(fieldToken)
	attr := Attr(field)

	switch {
	case op == OpBetween:
		lo, hi := field+"Lo", field+"Hi"
		plan.Params = append(plan.Params, lo, hi)
		return attr.Between(placeholder{lo}, placeholder{hi}), nil
	case op == OpIn:
		plan.Params = append(plan.Params, field)
		return attr.In(placeholder{field}), nil
	case params == 0:
		// True / False consume no call parameters
		if explicit && strings.HasSuffix(token, "False") {
			return attr.False(), nil
		}
		return attr.True(), nil
	default:
		plan.Params = append(plan.Params, field)
		return &Condition{kind: nodeLeaf, attr: field, op: op, value: placeholder{field}}, nil
	}
}

func parseGroups(plan *MethodPlan, part string) error {
	if part == "" {
		return nil
	}
	for _, tok := range strings.Split(part, "ThenBy") {
		if tok == "" {
			return errors.New(errors.KindQuery, "empty groupBy clause")
		}
		plan.GroupBy = append(plan.GroupBy, model.LowerCamel(tok))
	}
	return nil
}

func parseOrders(plan *MethodPlan, part string) error {
	if part == "" {
		return nil
	}
	for _, tok := range strings.Split(part, "ThenBy") {
		if tok == "" {
			return errors.New(errors.KindQuery, "empty orderBy clause")
		}
		dir := model.Asc
		if strings.HasSuffix(tok, "Desc") {
			dir = model.Desc
			tok = tok[:len(tok)-len("Desc")]
		} else if strings.HasSuffix(tok, "Asc") {
			tok = tok[:len(tok)-len("Asc")]
		}
		if tok == "" {
			return errors.New(errors.KindQuery, "orderBy clause names no field")
		}
		plan.OrderBy = append(plan.OrderBy, Order{Field: model.LowerCamel(tok), Dir: dir})
	}
	return nil
}

// Bind substitutes positional arguments into the plan's condition,
// consumed left-to-right in declaration order.
func (p *MethodPlan) Bind(args ...interface{}) (*Condition, error) {
	if len(args) != len(p.Params) {
		return nil, errors.New(errors.KindQuery,
			"method consumes %d parameters, got %d", len(p.Params), len(args))
	}
	i := 0
	next := func() interface{} {
		v := args[i]
		i++
		return v
	}
	return bindCondition(p.Where, next), nil
}

func bindCondition(c *Condition, next func() interface{}) *Condition {
	if c == nil {
		return nil
	}
	switch c.kind {
	case nodeAnd, nodeOr:
		out := *c
		out.left = bindCondition(c.left, next)
		out.right = bindCondition(c.right, next)
		return &out
	case nodeNot:
		out := *c
		out.left = bindCondition(c.left, next)
		return &out
	}
	out := *c
	if _, ok := out.value.(placeholder); ok {
		out.value = next()
	}
	if _, ok := out.lo.(placeholder); ok {
		out.lo = next()
	}
	if _, ok := out.hi.(placeholder); ok {
		out.hi = next()
	}
	if len(out.values) == 1 {
		if _, ok := out.values[0].(placeholder); ok {
			v := next()
			if vs, ok := v.([]interface{}); ok {
				out.values = vs
			} else {
				out.values = []interface{}{v}
			}
		}
	}
	return &out
}

// Statement composes the parsed plan (with bound arguments) back into a
// statement over the given table, so parser output and builder output
// compile to equivalent plans.
func (p *MethodPlan) Statement(table string, args ...interface{}) (*Statement, error) {
	where, err := p.Bind(args...)
	if err != nil {
		return nil, err
	}
	s := From(table)
	if where != nil {
		s.Where(where)
	}
	for _, g := range p.GroupBy {
		s.GroupBy(g)
	}
	for _, o := range p.OrderBy {
		s.OrderBy(o.Field, o.Dir)
	}
	switch p.Action {
	case ActionCount:
		s.Count(p.Selector)
	case ActionSum:
		s.Sum(p.Selector)
	case ActionAvg:
		s.Avg(p.Selector)
	case ActionMin:
		s.Min(p.Selector)
	case ActionMax:
		s.Max(p.Selector)
	case ActionDistinct:
		s.Distinct(p.Selector)
	case ActionGroup:
		s.Group()
	}
	return s, nil
}
