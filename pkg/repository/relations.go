package repository

import (
	"context"
	"reflect"

	"github.com/cuemby/strata/pkg/adapter"
	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/model"
	"github.com/cuemby/strata/pkg/query"
)

// pendingLink is a junction row awaiting the owner id
type pendingLink struct {
	rel model.Relation
	ids []string
}

// relationValue extracts a relation field's value from the instance
func relationValue(instance interface{}, field string) (reflect.Value, bool) {
	v := reflect.ValueOf(instance)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	f := v.FieldByName(field)
	if !f.IsValid() || f.IsZero() {
		return reflect.Value{}, false
	}
	return f, true
}

// coerceRelated turns a relation value into target ids. Plain ids pass
// through; entity values are recursively created through their own
// repository.
func (c *core) coerceRelated(ctx context.Context, rel model.Relation, v reflect.Value) ([]string, error) {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		var ids []string
		for i := 0; i < v.Len(); i++ {
			sub, err := c.coerceRelated(ctx, rel, v.Index(i))
			if err != nil {
				return nil, err
			}
			ids = append(ids, sub...)
		}
		return ids, nil
	case reflect.String:
		return []string{v.String()}, nil
	case reflect.Ptr, reflect.Struct:
		target, err := coreFor(rel.Target, c.user)
		if err != nil {
			return nil, err
		}
		created, err := target.create(ctx, v.Interface())
		if err != nil {
			return nil, err
		}
		_, id, err := adapter.Prepare(target.meta, created)
		if err != nil {
			return nil, err
		}
		return []string{id}, nil
	}
	return nil, errors.New(errors.KindValidation,
		"%s: relation %s cannot hold a %s", c.meta.Table, rel.Field, v.Kind())
}

// cascadeCreate resolves every relation value before the owner is
// written: one-to-one/one-to-many ids are inlined into the record,
// many-to-many links are deferred until the owner id exists.
func (c *core) cascadeCreate(ctx context.Context, instance interface{}, rec adapter.Record) ([]pendingLink, error) {
	var pending []pendingLink
	for _, rel := range c.meta.Relations {
		v, ok := relationValue(instance, rel.Field)
		if !ok {
			continue
		}
		ids, err := c.coerceRelated(ctx, rel, v)
		if err != nil {
			return nil, err
		}
		switch rel.Kind {
		case model.OneToOne:
			if len(ids) > 0 {
				rec[model.LowerCamel(rel.Field)] = ids[0]
			}
		case model.OneToMany:
			rec[model.LowerCamel(rel.Field)] = toAnySlice(ids)
		case model.ManyToMany:
			pending = append(pending, pendingLink{rel: rel, ids: ids})
		}
	}
	return pending, nil
}

func toAnySlice(ids []string) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// junctionSides orders (owner id, target id) into the junction table's
// sorted column layout.
func (c *core) junctionSides(rel model.Relation, ownerID, targetID string) (adapter.Record, string) {
	aCol, bCol := model.JunctionColumns(rel.JunctionTable)
	ownerFirst := model.LowerCamel(c.meta.Table)+"Id" == aCol
	rec := adapter.Record{}
	var key string
	if ownerFirst {
		rec[aCol], rec[bCol] = ownerID, targetID
		key = model.JunctionKey(ownerID, targetID)
	} else {
		rec[aCol], rec[bCol] = targetID, ownerID
		key = model.JunctionKey(targetID, ownerID)
	}
	return rec, key
}

// linkJunctions inserts the deferred junction rows once the owner id is
// durable. An existing row for the same pair is left alone.
func (c *core) linkJunctions(ctx context.Context, ownerID string, pending []pendingLink) error {
	for _, p := range pending {
		for _, targetID := range p.ids {
			rec, key := c.junctionSides(p.rel, ownerID, targetID)
			if _, err := c.ad.Create(ctx, p.rel.JunctionTable, key, rec); err != nil {
				if errors.IsConflict(err) {
					continue
				}
				return c.ad.ParseError(err)
			}
		}
	}
	return nil
}

// linkedTargets loads the target ids currently joined to ownerID
func (c *core) linkedTargets(ctx context.Context, rel model.Relation, ownerID string) ([]string, error) {
	ownerCol := model.LowerCamel(c.meta.Table) + "Id"
	aCol, bCol := model.JunctionColumns(rel.JunctionTable)
	targetCol := bCol
	if ownerCol == bCol {
		targetCol = aCol
	}
	res, err := c.ad.Raw(ctx, &query.Plan{
		From:  rel.JunctionTable,
		Where: query.Attr(ownerCol).Eq(ownerID),
		Limit: -1,
	})
	if err != nil {
		return nil, c.ad.ParseError(err)
	}
	rows, _ := res.([]map[string]interface{})
	var ids []string
	for _, row := range rows {
		if s, ok := row[targetCol].(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

// cascadeUpdate propagates CASCADE flags and reconciles junction sets.
// NONE relations leave related records untouched but still refresh the
// junction rows.
func (c *core) cascadeUpdate(ctx context.Context, instance interface{}, rec, prior adapter.Record, ownerID string) error {
	for _, rel := range c.meta.Relations {
		v, ok := relationValue(instance, rel.Field)

		switch rel.Kind {
		case model.OneToOne, model.OneToMany:
			col := model.LowerCamel(rel.Field)
			if !ok {
				// keep the stored reference when the caller did not
				// touch the relation
				if pv, exists := prior[col]; exists {
					rec[col] = pv
				}
				continue
			}
			ids, err := c.cascadeRelatedUpdate(ctx, rel, v)
			if err != nil {
				return err
			}
			if rel.Kind == model.OneToOne {
				if len(ids) > 0 {
					rec[col] = ids[0]
				}
			} else {
				rec[col] = toAnySlice(ids)
			}

		case model.ManyToMany:
			if !ok {
				continue
			}
			ids, err := c.coerceRelated(ctx, rel, v)
			if err != nil {
				return err
			}
			if err := c.reconcileJunction(ctx, rel, ownerID, ids); err != nil {
				return err
			}
		}
	}
	return nil
}

// cascadeRelatedUpdate recursively updates entity values when the
// relation carries an update CASCADE; plain ids never touch the target.
func (c *core) cascadeRelatedUpdate(ctx context.Context, rel model.Relation, v reflect.Value) ([]string, error) {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		var ids []string
		for i := 0; i < v.Len(); i++ {
			sub, err := c.cascadeRelatedUpdate(ctx, rel, v.Index(i))
			if err != nil {
				return nil, err
			}
			ids = append(ids, sub...)
		}
		return ids, nil
	case reflect.String:
		return []string{v.String()}, nil
	case reflect.Ptr, reflect.Struct:
		target, err := coreFor(rel.Target, c.user)
		if err != nil {
			return nil, err
		}
		if rel.Cascade.OnUpdate != model.CascadeAll {
			_, id, err := adapter.Prepare(target.meta, v.Interface())
			return []string{id}, err
		}
		updated, err := target.update(ctx, v.Interface())
		if err != nil {
			return nil, err
		}
		_, id, err := adapter.Prepare(target.meta, updated)
		if err != nil {
			return nil, err
		}
		return []string{id}, nil
	}
	return nil, errors.New(errors.KindValidation,
		"%s: relation %s cannot hold a %s", c.meta.Table, rel.Field, v.Kind())
}

// reconcileJunction applies the set difference between stored and wanted
// links: missing rows are inserted, stale rows removed.
func (c *core) reconcileJunction(ctx context.Context, rel model.Relation, ownerID string, wanted []string) error {
	existing, err := c.linkedTargets(ctx, rel, ownerID)
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(wanted))
	for _, id := range wanted {
		want[id] = true
	}
	have := make(map[string]bool, len(existing))
	for _, id := range existing {
		have[id] = true
	}

	for _, id := range wanted {
		if !have[id] {
			rec, key := c.junctionSides(rel, ownerID, id)
			if _, err := c.ad.Create(ctx, rel.JunctionTable, key, rec); err != nil && !errors.IsConflict(err) {
				return c.ad.ParseError(err)
			}
		}
	}
	for _, id := range existing {
		if !want[id] {
			_, key := c.junctionSides(rel, ownerID, id)
			if _, err := c.ad.Delete(ctx, rel.JunctionTable, key); err != nil && !errors.IsNotFound(err) {
				return c.ad.ParseError(err)
			}
		}
	}
	return nil
}

// cascadeDelete removes related rows per the relations' delete flags.
// Junction rows of the deleted owner always go; owning CASCADE ends
// delete the targets as well.
func (c *core) cascadeDelete(ctx context.Context, ownerID string, prior adapter.Record) error {
	for _, rel := range c.meta.Relations {
		switch rel.Kind {
		case model.OneToOne, model.OneToMany:
			if rel.Cascade.OnDelete != model.CascadeAll {
				continue
			}
			target, err := coreFor(rel.Target, c.user)
			if err != nil {
				return err
			}
			for _, id := range storedIDs(prior[model.LowerCamel(rel.Field)]) {
				if _, err := target.del(ctx, id); err != nil && !errors.IsNotFound(err) {
					return err
				}
			}

		case model.ManyToMany:
			linked, err := c.linkedTargets(ctx, rel, ownerID)
			if err != nil {
				return err
			}
			for _, id := range linked {
				_, key := c.junctionSides(rel, ownerID, id)
				if _, err := c.ad.Delete(ctx, rel.JunctionTable, key); err != nil && !errors.IsNotFound(err) {
					return c.ad.ParseError(err)
				}
			}
			if rel.Cascade.OnDelete == model.CascadeAll && rel.Owning {
				target, err := coreFor(rel.Target, c.user)
				if err != nil {
					return err
				}
				for _, id := range linked {
					if _, err := target.del(ctx, id); err != nil && !errors.IsNotFound(err) {
						return err
					}
				}
			}
		}
	}
	return nil
}

func storedIDs(v interface{}) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []interface{}:
		var ids []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	case []string:
		return val
	}
	return nil
}

// populate loads related entities into populate-flagged relation fields
// when the field type can hold them.
func (c *core) populate(ctx context.Context, id string, out interface{}) error {
	v := reflect.ValueOf(out)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	for _, rel := range c.meta.Relations {
		if !rel.Populate {
			continue
		}
		f := v.FieldByName(rel.Field)
		if !f.IsValid() || !f.CanSet() {
			continue
		}
		target, err := coreFor(rel.Target, c.user)
		if err != nil {
			return err
		}

		var ids []string
		switch rel.Kind {
		case model.ManyToMany:
			ids, err = c.linkedTargets(ctx, rel, id)
			if err != nil {
				return err
			}
		default:
			rec, err := c.ad.Read(ctx, c.meta.Table, id)
			if err != nil {
				return c.ad.ParseError(err)
			}
			ids = storedIDs(rec[model.LowerCamel(rel.Field)])
		}

		if err := setRelated(ctx, target, f, ids); err != nil {
			return err
		}
	}
	return nil
}

// setRelated assigns loaded targets to a relation field holding either a
// single pointer or a slice of pointers; id-typed fields keep the ids.
func setRelated(ctx context.Context, target *core, f reflect.Value, ids []string) error {
	switch f.Kind() {
	case reflect.Ptr:
		if len(ids) == 0 {
			return nil
		}
		loaded, err := target.read(ctx, ids[0])
		if err != nil {
			return err
		}
		lv := reflect.ValueOf(loaded)
		if lv.Type().AssignableTo(f.Type()) {
			f.Set(lv)
		}
		return nil
	case reflect.Slice:
		if f.Type().Elem().Kind() != reflect.Ptr {
			return nil
		}
		out := reflect.MakeSlice(f.Type(), 0, len(ids))
		for _, id := range ids {
			loaded, err := target.read(ctx, id)
			if err != nil {
				return err
			}
			lv := reflect.ValueOf(loaded)
			if lv.Type().AssignableTo(f.Type().Elem()) {
				out = reflect.Append(out, lv)
			}
		}
		f.Set(out)
		return nil
	}
	return nil
}

