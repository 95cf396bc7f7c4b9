package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Person struct {
	ID      int64
	Name    string
	Age     int
	Version int64
}

type Team struct {
	ID      string
	Name    string
	Members []string
}

type Badge struct {
	ID    string
	Label string
}

func TestRegisterDerivesColumns(t *testing.T) {
	meta, err := Describe[Person]().
		Table("people").
		PK("ID", PKNumber).
		Register()
	require.NoError(t, err)

	assert.Equal(t, "people", meta.Table)
	assert.Equal(t, "id", meta.PK.Column)
	assert.Equal(t, PKNumber, meta.PK.Kind)

	col, ok := meta.ColumnFor("Name")
	require.True(t, ok)
	assert.Equal(t, "name", col)

	field, ok := meta.FieldFor("version")
	require.True(t, ok)
	assert.Equal(t, "Version", field)

	// registration order preserved, pk excluded
	var cols []string
	for _, c := range meta.Columns {
		cols = append(cols, c.Column)
	}
	assert.Equal(t, []string{"name", "age", "version"}, cols)
}

func TestRegisterRequiresPK(t *testing.T) {
	_, err := Describe[Badge]().Table("badges_nopk").Register()
	assert.Error(t, err)
}

func TestLookupByTypeAndTable(t *testing.T) {
	meta, err := Describe[Badge]().Table("badges").PK("ID", PKString).Register()
	require.NoError(t, err)

	got, ok := Lookup(meta.Type)
	require.True(t, ok)
	assert.Equal(t, meta, got)

	byTable, ok := LookupTable("badges")
	require.True(t, ok)
	assert.Equal(t, meta, byTable)
}

func TestBlockedOperations(t *testing.T) {
	meta, err := Describe[Badge]().
		Table("badges_ro").
		PK("ID", PKString).
		Block(OpUpdate, OpDelete).
		Register()
	require.NoError(t, err)

	assert.False(t, meta.IsBlocked(OpCreate))
	assert.True(t, meta.IsBlocked(OpUpdate))
	assert.True(t, meta.IsBlocked(OpDelete))
}

// TestHookOrdering verifies the stable (priority, groupPriority) total order
func TestHookOrdering(t *testing.T) {
	var fired []string
	mk := func(tag string) FieldHandler {
		return func(hc HookContext, rec map[string]interface{}, field string) error {
			fired = append(fired, tag)
			return nil
		}
	}

	meta, err := Describe[Person]().
		Table("people_hooks").
		PK("ID", PKNumber).
		Handler("Name", PhaseCreate, 10, 0, mk("late")).
		Handler("Name", PhaseCreate, 1, 5, mk("early-b")).
		Handler("Name", PhaseCreate, 1, 1, mk("early-a")).
		Handler("Age", PhaseCreate, 1, 1, mk("early-a2")).
		Handler("Name", PhaseUpdate, 0, 0, mk("update-only")).
		Register()
	require.NoError(t, err)

	hc := HookContext{Operation: OpCreate}
	for _, h := range meta.HooksFor(PhaseCreate) {
		require.NoError(t, h.Handler(hc, map[string]interface{}{}, h.Field))
	}
	// equal (priority, groupPriority) pairs keep registration order
	assert.Equal(t, []string{"early-a", "early-a2", "early-b", "late"}, fired)

	assert.Len(t, meta.HooksFor(PhaseUpdate), 1)
}

func TestManyToManySynthesisesJunction(t *testing.T) {
	_, err := Describe[Badge]().Table("badge").PK("ID", PKString).Register()
	require.NoError(t, err)

	meta, err := Describe[Team]().
		Table("team").
		PK("ID", PKString).
		ManyToMany("Members", Badge{}, Cascade{OnDelete: CascadeAll}, false).
		Register()
	require.NoError(t, err)

	rel, ok := meta.RelationFor("Members")
	require.True(t, ok)
	assert.Equal(t, "badge_team", rel.JunctionTable)

	junction, ok := LookupTable("badge_team")
	require.True(t, ok)
	assert.True(t, junction.Synthetic)

	aCol, bCol := JunctionColumns("badge_team")
	assert.Equal(t, "badgeId", aCol)
	assert.Equal(t, "teamId", bCol)
	assert.Len(t, junction.Indexes, 1)
	assert.Equal(t, []string{"badgeId", "teamId"}, junction.Indexes[0].Fields)
}

type Left struct {
	ID    string
	Right interface{}
}

type Right struct {
	ID   string
	Left interface{}
}

// TestBidirectionalPopulateRejected verifies populate=true on both ends
// fails at registration.
func TestBidirectionalPopulateRejected(t *testing.T) {
	_, err := Describe[Left]().
		Table("left").
		PK("ID", PKString).
		OneToOne("Right", Right{}, Cascade{}, true).
		Register()
	require.NoError(t, err)

	_, err = Describe[Right]().
		Table("right").
		PK("ID", PKString).
		OneToOne("Left", Left{}, Cascade{}, true).
		Register()
	assert.Error(t, err)
}

func TestLowerCamel(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"Name", "name"},
		{"ID", "id"},
		{"CreatedAt", "createdAt"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, LowerCamel(tt.in))
	}
}
