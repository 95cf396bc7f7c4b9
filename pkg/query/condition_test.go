package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPredicate(t *testing.T, c *Condition) Predicate {
	t.Helper()
	p, err := c.Compile()
	require.NoError(t, err)
	return p
}

func TestLeafPredicates(t *testing.T) {
	rec := map[string]interface{}{
		"age":    21,
		"name":   "ada",
		"active": true,
	}

	tests := []struct {
		name string
		cond *Condition
		want bool
	}{
		{"eq match", Attr("age").Eq(21), true},
		{"eq miss", Attr("age").Eq(22), false},
		{"ne", Attr("age").Ne(22), true},
		{"gt", Attr("age").Gt(18), true},
		{"ge boundary", Attr("age").Ge(21), true},
		{"lt miss", Attr("age").Lt(21), false},
		{"le boundary", Attr("age").Le(21), true},
		{"in hit", Attr("age").In(1, 21, 30), true},
		{"in miss", Attr("age").In(1, 2), false},
		{"between inside", Attr("age").Between(18, 30), true},
		{"between outside", Attr("age").Between(30, 40), false},
		{"regexp", Attr("name").Regexp("^a.*"), true},
		{"regexp miss", Attr("name").Regexp("^b"), false},
		{"true", Attr("active").True(), true},
		{"false", Attr("active").False(), false},
		{"eq mismatched type is false", Attr("name").Eq(7), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mustPredicate(t, tt.cond)(rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCombinators(t *testing.T) {
	rec := map[string]interface{}{"age": 21, "active": true}

	and := Attr("age").Gt(18).And(Attr("active").True())
	got, err := mustPredicate(t, and)(rec)
	require.NoError(t, err)
	assert.True(t, got)

	or := Attr("age").Gt(99).Or(Attr("active").True())
	got, err = mustPredicate(t, or)(rec)
	require.NoError(t, err)
	assert.True(t, got)

	not := Attr("active").True().Not()
	got, err = mustPredicate(t, not)(rec)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestRegexpCompiledAtCompileTime(t *testing.T) {
	_, err := Attr("name").Regexp("(").Compile()
	assert.Error(t, err)
}

func TestOrderingAgainstMismatchedTypesFails(t *testing.T) {
	rec := map[string]interface{}{"age": "twenty"}
	p := mustPredicate(t, Attr("age").Gt(18))
	_, err := p(rec)
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	early := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	tests := []struct {
		name string
		a, b interface{}
		want int
	}{
		{"ints", 1, 2, -1},
		{"mixed numeric widths", int64(5), 5.0, 0},
		{"strings", "a", "b", -1},
		{"bools true beats false", true, false, 1},
		{"dates", early, late, -1},
		{"nil against nil", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Compare(1, "x")
	assert.Error(t, err)
	_, err = Compare(nil, 3)
	assert.Error(t, err)
}

type flavour string

func TestCompareNamedStringTypes(t *testing.T) {
	got, err := Compare(flavour("a"), flavour("b"))
	require.NoError(t, err)
	assert.Equal(t, -1, got)
}

// TestSortRecordsStable verifies ties keep insertion order and nulls
// rank last ascending, first descending.
func TestSortRecordsStable(t *testing.T) {
	recs := []map[string]interface{}{
		{"n": 2, "tag": "a"},
		{"n": 1, "tag": "b"},
		{"n": 2, "tag": "c"},
		{"n": nil, "tag": "d"},
	}

	require.NoError(t, SortRecords(recs, []Order{{Field: "n", Dir: "asc"}}))
	var tags []string
	for _, r := range recs {
		tags = append(tags, r["tag"].(string))
	}
	assert.Equal(t, []string{"b", "a", "c", "d"}, tags)

	require.NoError(t, SortRecords(recs, []Order{{Field: "n", Dir: "desc"}}))
	tags = nil
	for _, r := range recs {
		tags = append(tags, r["tag"].(string))
	}
	assert.Equal(t, []string{"d", "a", "c", "b"}, tags)
}
