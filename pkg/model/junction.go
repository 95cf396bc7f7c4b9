package model

import (
	"sort"
	"strings"
)

// Junction column names are derived from the two sides' table names with
// an "Id" suffix, e.g. user_group has columns userId and groupId.
func junctionColumn(table string) string {
	return lowerCamel(table) + "Id"
}

// SynthesiseJunction builds the metadata for the auto-generated junction
// entity backing a many-to-many relation. The table name is deterministic
// from both sides (sorted, joined with "_"), the two FK columns form a
// composite unique key.
func SynthesiseJunction(owner *Metadata, rel *Relation) *Metadata {
	targetTable := strings.ToLower(rel.Target.Name())
	if tm, ok := Lookup(rel.Target); ok {
		targetTable = tm.Table
	}

	sides := []string{owner.Table, targetTable}
	sort.Strings(sides)
	table := sides[0] + "_" + sides[1]

	aCol := junctionColumn(sides[0])
	bCol := junctionColumn(sides[1])

	m := &Metadata{
		Table:     table,
		Synthetic: true,
		PK:        PKField{Field: "Id", Column: "id", Kind: PKString},
		Columns: []Column{
			{Field: "AId", Column: aCol},
			{Field: "BId", Column: bCol},
		},
		Indexes: []Index{{
			Name:       table + "_unique",
			Fields:     []string{aCol, bCol},
			Directions: []Direction{Asc, Asc},
		}},
		Blocked: make(map[Operation]bool),
		Flavour: owner.Flavour,
	}
	m.index()
	return m
}

// JunctionKey builds the deterministic pk for a junction row from both
// side ids; uniqueness of (a,b) rides on pk uniqueness.
func JunctionKey(aID, bID string) string {
	return aID + ":" + bID
}

// JunctionColumns returns the FK column names of a junction table in the
// same sorted order used at synthesis time.
func JunctionColumns(table string) (string, string) {
	parts := strings.SplitN(table, "_", 2)
	if len(parts) != 2 {
		return "aId", "bId"
	}
	return junctionColumn(parts[0]), junctionColumn(parts[1])
}
