package model

import (
	"reflect"
	"sort"
	"strings"

	"github.com/cuemby/strata/pkg/errors"
)

// Conventional column names for server-populated fields
const (
	ColCreatedAt = "createdAt"
	ColUpdatedAt = "updatedAt"
	ColCreatedBy = "createdBy"
	ColUpdatedBy = "updatedBy"
	ColVersion   = "version"
)

// Builder accumulates entity metadata during declaration.
// It replaces the decorator registration of dynamic runtimes with an
// explicit registration step keyed by type identity.
type Builder struct {
	meta    *Metadata
	err     error
	hookSeq int
}

// Describe starts a metadata declaration for T
func Describe[T any]() *Builder {
	var zero T
	typ := reflect.TypeOf(zero)
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	b := &Builder{meta: &Metadata{
		Type:    typ,
		Blocked: make(map[Operation]bool),
	}}
	if typ == nil || typ.Kind() != reflect.Struct {
		b.err = errors.New(errors.KindValidation, "model: entities must be struct types")
		return b
	}
	b.meta.Table = strings.ToLower(typ.Name())
	return b
}

// Table overrides the table name (default: lower-cased type name)
func (b *Builder) Table(name string) *Builder {
	b.meta.Table = name
	return b
}

// PK declares the primary key field and kind. The column name defaults to
// the lowerCamel form of the field.
func (b *Builder) PK(field string, kind PKKind) *Builder {
	b.meta.PK = PKField{Field: field, Column: lowerCamel(field), Kind: kind}
	return b
}

// Column maps a struct field to an explicit column name
func (b *Builder) Column(field, column string) *Builder {
	b.meta.Columns = append(b.meta.Columns, Column{Field: field, Column: column})
	return b
}

// Index declares a secondary index over the given fields
func (b *Builder) Index(name string, fields []string, dirs []Direction) *Builder {
	if len(dirs) == 0 {
		dirs = make([]Direction, len(fields))
		for i := range dirs {
			dirs[i] = Asc
		}
	}
	if len(dirs) != len(fields) {
		b.fail(errors.New(errors.KindValidation, "model: index %s has %d fields but %d directions", name, len(fields), len(dirs)))
		return b
	}
	b.meta.Indexes = append(b.meta.Indexes, Index{Name: name, Fields: fields, Directions: dirs})
	return b
}

// OneToOne declares a one-to-one relation on field
func (b *Builder) OneToOne(field string, target interface{}, cascade Cascade, populate bool) *Builder {
	return b.relation(field, OneToOne, target, cascade, populate)
}

// OneToMany declares a one-to-many relation on field
func (b *Builder) OneToMany(field string, target interface{}, cascade Cascade, populate bool) *Builder {
	return b.relation(field, OneToMany, target, cascade, populate)
}

// ManyToMany declares a many-to-many relation on field.
// A junction entity is synthesised and registered when Register runs.
func (b *Builder) ManyToMany(field string, target interface{}, cascade Cascade, populate bool) *Builder {
	return b.relation(field, ManyToMany, target, cascade, populate)
}

func (b *Builder) relation(field string, kind RelationKind, target interface{}, cascade Cascade, populate bool) *Builder {
	typ := TypeOf(target)
	if cascade.OnUpdate == "" {
		cascade.OnUpdate = CascadeNone
	}
	if cascade.OnDelete == "" {
		cascade.OnDelete = CascadeNone
	}
	b.meta.Relations = append(b.meta.Relations, Relation{
		Field:    field,
		Kind:     kind,
		Target:   typ,
		Cascade:  cascade,
		Populate: populate,
		Owning:   true,
	})
	return b
}

// Block adds operations to the blocked set
func (b *Builder) Block(ops ...Operation) *Builder {
	for _, op := range ops {
		b.meta.Blocked[op] = true
	}
	return b
}

// Flavour pins the entity to an adapter flavour
func (b *Builder) Flavour(flavour string) *Builder {
	b.meta.Flavour = flavour
	return b
}

// Handler attaches a field hook with composition ordering
func (b *Builder) Handler(field string, phase Phase, priority, groupPriority int, fn FieldHandler) *Builder {
	b.hookSeq++
	b.meta.Hooks = append(b.meta.Hooks, FieldHook{
		Field:         field,
		Phase:         phase,
		Priority:      priority,
		GroupPriority: groupPriority,
		Handler:       fn,
		seq:           b.hookSeq,
	})
	return b
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Register validates and stores the metadata in the process-wide registry.
// Missing columns are derived from exported struct fields in declaration
// order; a junction entity is synthesised per many-to-many relation.
func (b *Builder) Register() (*Metadata, error) {
	if b.err != nil {
		return nil, b.err
	}
	m := b.meta

	if m.PK.Field == "" {
		return nil, errors.New(errors.KindValidation, "model: %s has no primary key", m.Table)
	}

	if len(m.Columns) == 0 {
		b.deriveColumns()
	}

	// Keep hook dispatch order as a stable total order over
	// (priority, groupPriority, registration sequence).
	sort.SliceStable(m.Hooks, func(i, j int) bool {
		if m.Hooks[i].Priority != m.Hooks[j].Priority {
			return m.Hooks[i].Priority < m.Hooks[j].Priority
		}
		if m.Hooks[i].GroupPriority != m.Hooks[j].GroupPriority {
			return m.Hooks[i].GroupPriority < m.Hooks[j].GroupPriority
		}
		return m.Hooks[i].seq < m.Hooks[j].seq
	})

	for i := range m.Relations {
		rel := &m.Relations[i]
		if err := b.checkBidirectional(rel); err != nil {
			return nil, err
		}
		if rel.Kind == ManyToMany {
			junction := SynthesiseJunction(m, rel)
			rel.JunctionTable = junction.Table
			global.put(junction)
		}
	}

	m.index()
	global.put(m)
	return m, nil
}

// MustRegister registers or panics; used in package-level declarations
func (b *Builder) MustRegister() *Metadata {
	m, err := b.Register()
	if err != nil {
		panic(err)
	}
	return m
}

// checkBidirectional rejects populate=true on both ends of a relation pair
func (b *Builder) checkBidirectional(rel *Relation) error {
	if !rel.Populate || rel.Target == nil {
		return nil
	}
	other, ok := Lookup(rel.Target)
	if !ok {
		return nil
	}
	for _, back := range other.Relations {
		if back.Target == b.meta.Type && back.Populate {
			return errors.New(errors.KindValidation,
				"model: bidirectional populate between %s and %s", b.meta.Table, other.Table)
		}
	}
	return nil
}

// deriveColumns maps every exported struct field to its lowerCamel column,
// skipping the pk and relation fields which are handled separately.
func (b *Builder) deriveColumns() {
	m := b.meta
	for i := 0; i < m.Type.NumField(); i++ {
		f := m.Type.Field(i)
		if !f.IsExported() || f.Name == m.PK.Field {
			continue
		}
		if _, isRel := m.RelationFor(f.Name); isRel {
			continue
		}
		m.Columns = append(m.Columns, Column{Field: f.Name, Column: lowerCamel(f.Name)})
	}
}

// LowerCamel converts an exported field name to its column form.
// All-caps initialisms lower entirely, so ID becomes id.
func LowerCamel(s string) string {
	if s == "" {
		return s
	}
	if strings.ToUpper(s) == s {
		return strings.ToLower(s)
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func lowerCamel(s string) string { return LowerCamel(s) }
