package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/model"
)

// TestParseFullMethodName covers the documented example: condition
// pair, group list, descending order.
func TestParseFullMethodName(t *testing.T) {
	plan, err := ParseMethod("findByAgeGreaterThanAndActiveGroupByCountryThenByCityOrderByAgeDesc")
	require.NoError(t, err)

	assert.Equal(t, ActionFind, plan.Action)
	assert.Equal(t, []string{"country", "city"}, plan.GroupBy)
	assert.Equal(t, []Order{{Field: "age", Dir: model.Desc}}, plan.OrderBy)
	assert.Equal(t, []string{"age", "active"}, plan.Params)

	where, err := plan.Bind(18, true)
	require.NoError(t, err)
	pred, err := where.Compile()
	require.NoError(t, err)

	hit, err := pred(map[string]interface{}{"age": 20, "active": true})
	require.NoError(t, err)
	assert.True(t, hit)

	miss, err := pred(map[string]interface{}{"age": 20, "active": false})
	require.NoError(t, err)
	assert.False(t, miss)
}

func TestParsePrefixes(t *testing.T) {
	tests := []struct {
		in     string
		action Action
	}{
		{"findByName", ActionFind},
		{"listByName", ActionFind},
		{"pageByName", ActionPage},
		{"countByName", ActionCount},
		{"sumByAge", ActionSum},
		{"avgByAge", ActionAvg},
		{"minByAge", ActionMin},
		{"maxByAge", ActionMax},
		{"distinctByCountry", ActionDistinct},
		{"groupByCountry", ActionGroup},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			plan, err := ParseMethod(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.action, plan.Action)
		})
	}
}

func TestUnknownPrefixRejected(t *testing.T) {
	_, err := ParseMethod("fetchByName")
	assert.Equal(t, errors.KindUnsupported, errors.KindOf(err))
}

func TestParseOperators(t *testing.T) {
	tests := []struct {
		in     string
		params []string
	}{
		{"findByAgeEquals", []string{"age"}},
		{"findByAgeNotEquals", []string{"age"}},
		{"findByAgeGreaterThanEqual", []string{"age"}},
		{"findByAgeLessThan", []string{"age"}},
		{"findByAgeBetween", []string{"ageLo", "ageHi"}},
		{"findByCountryIn", []string{"country"}},
		{"findByNameLike", []string{"name"}},
		{"findByActiveTrue", nil},
		{"findByActiveFalse", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			plan, err := ParseMethod(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.params, plan.Params)
		})
	}
}

func TestBetweenBinding(t *testing.T) {
	plan, err := ParseMethod("findByAgeBetween")
	require.NoError(t, err)

	where, err := plan.Bind(18, 30)
	require.NoError(t, err)
	pred, err := where.Compile()
	require.NoError(t, err)

	in, err := pred(map[string]interface{}{"age": 21})
	require.NoError(t, err)
	assert.True(t, in)
	out, err := pred(map[string]interface{}{"age": 31})
	require.NoError(t, err)
	assert.False(t, out)
}

func TestOrConnector(t *testing.T) {
	plan, err := ParseMethod("findByAgeLessThanOrActiveTrue")
	require.NoError(t, err)

	where, err := plan.Bind(10)
	require.NoError(t, err)
	pred, err := where.Compile()
	require.NoError(t, err)

	hit, err := pred(map[string]interface{}{"age": 50, "active": true})
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestAggregateSelector(t *testing.T) {
	plan, err := ParseMethod("sumByAge")
	require.NoError(t, err)
	assert.Equal(t, ActionSum, plan.Action)
	assert.Equal(t, "age", plan.Selector)
	assert.Nil(t, plan.Where)
	assert.Empty(t, plan.Params)
}

func TestBindArityChecked(t *testing.T) {
	plan, err := ParseMethod("findByAgeEquals")
	require.NoError(t, err)
	_, err = plan.Bind()
	assert.Error(t, err)
}

// TestParserStatementRoundTrip verifies a parsed plan composes through
// the builder into an equivalent compiled plan.
func TestParserStatementRoundTrip(t *testing.T) {
	parsed, err := ParseMethod("findByAgeGreaterThanAndActiveGroupByCountryThenByCityOrderByAgeDesc")
	require.NoError(t, err)

	stmt, err := parsed.Statement("users", 18, true)
	require.NoError(t, err)
	fromParser, err := stmt.Build()
	require.NoError(t, err)

	direct, err := From("users").
		Where(Attr("age").Gt(18).And(Attr("active").Eq(true))).
		GroupBy("country").
		ThenBy("city").
		OrderBy("age", model.Desc).
		Build()
	require.NoError(t, err)

	assert.Equal(t, direct.GroupBy, fromParser.GroupBy)
	assert.Equal(t, direct.Sort, fromParser.Sort)
	assert.Equal(t, direct.Where.String(), fromParser.Where.String())

	directName, err := From("users").
		Where(Attr("age").Gt(18).And(Attr("active").Eq(true))).
		GroupBy("country").
		ThenBy("city").
		OrderBy("age", model.Desc).
		Prepare()
	require.NoError(t, err)
	assert.Equal(t, "findByAgeGreaterThanAndActiveTrueGroupByCountryThenByCityOrderByAgeDesc", directName)
}
