package model

import (
	"reflect"
	"time"
)

// Operation identifies a repository operation kind
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpQuery  Operation = "query"
)

// PKKind identifies the primary key generation strategy
type PKKind string

const (
	PKString PKKind = "string"
	PKNumber PKKind = "number"
	PKBigint PKKind = "bigint"
	PKUUID   PKKind = "uuid"
	PKSerial PKKind = "serial"
)

// Direction is a sort direction for indexes and ordering
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// PKField describes the primary key of an entity
type PKField struct {
	Field  string
	Column string
	Kind   PKKind
}

// Column maps a struct field to its stored column name.
// Registration order is preserved and meaningful.
type Column struct {
	Field  string
	Column string
}

// Index describes a secondary index over one or more attributes.
// Used by the filesystem adapter to maintain derived index files.
type Index struct {
	Name       string
	Fields     []string
	Directions []Direction
}

// RelationKind identifies the shape of a relation
type RelationKind string

const (
	OneToOne   RelationKind = "one-to-one"
	OneToMany  RelationKind = "one-to-many"
	ManyToMany RelationKind = "many-to-many"
)

// CascadeMode controls propagation of update/delete through a relation
type CascadeMode string

const (
	CascadeNone CascadeMode = "none"
	CascadeAll  CascadeMode = "cascade"
)

// Cascade holds per-operation cascade flags
type Cascade struct {
	OnUpdate CascadeMode
	OnDelete CascadeMode
}

// Relation describes a relation declared on an entity field
type Relation struct {
	Field    string
	Kind     RelationKind
	Target   reflect.Type
	Cascade  Cascade
	Populate bool

	// JunctionTable is set for many-to-many relations; the junction entity
	// is synthesised at registration time.
	JunctionTable string
	// Owning marks the side that declared the relation; junction rows and
	// cascaded target deletes follow the owning side.
	Owning bool
}

// Phase identifies when a field hook fires
type Phase string

const (
	PhaseCreate Phase = "onCreate"
	PhaseUpdate Phase = "onUpdate"
)

// HookContext carries per-call information into field hooks
type HookContext struct {
	Operation Operation
	User      string
	Now       time.Time
}

// FieldHandler mutates a prepared record for one field before it is written
type FieldHandler func(hc HookContext, record map[string]interface{}, field string) error

// FieldHook binds a handler to a field with composition ordering.
// Hooks fire in ascending (Priority, GroupPriority) order; the sort is
// stable so equal pairs keep registration order.
type FieldHook struct {
	Field         string
	Phase         Phase
	Priority      int
	GroupPriority int
	Handler       FieldHandler
	seq           int
}

// Metadata is the reflective description of a registered entity
type Metadata struct {
	Type      reflect.Type
	Table     string
	PK        PKField
	Columns   []Column
	Indexes   []Index
	Relations []Relation
	Blocked   map[Operation]bool
	Flavour   string
	Hooks     []FieldHook

	// Synthetic marks auto-generated entities (junction tables); they have
	// no backing Go type and Type is nil.
	Synthetic bool

	colByField map[string]string
	fieldByCol map[string]string
}

// ColumnFor returns the stored column name for a struct field
func (m *Metadata) ColumnFor(field string) (string, bool) {
	c, ok := m.colByField[field]
	return c, ok
}

// FieldFor returns the struct field for a stored column name
func (m *Metadata) FieldFor(column string) (string, bool) {
	f, ok := m.fieldByCol[column]
	return f, ok
}

// IsBlocked reports whether op is in the entity's blocked-operations set
func (m *Metadata) IsBlocked(op Operation) bool {
	return m.Blocked[op]
}

// HooksFor returns the hooks for a phase in composition order
func (m *Metadata) HooksFor(phase Phase) []FieldHook {
	var out []FieldHook
	for _, h := range m.Hooks {
		if h.Phase == phase {
			out = append(out, h)
		}
	}
	return out
}

// RelationFor returns the relation declared on field, if any
func (m *Metadata) RelationFor(field string) (Relation, bool) {
	for _, r := range m.Relations {
		if r.Field == field {
			return r, true
		}
	}
	return Relation{}, false
}

func (m *Metadata) index() {
	m.colByField = make(map[string]string, len(m.Columns))
	m.fieldByCol = make(map[string]string, len(m.Columns))
	for _, c := range m.Columns {
		m.colByField[c.Field] = c.Column
		m.fieldByCol[c.Column] = c.Field
	}
}
