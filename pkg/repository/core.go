package repository

import (
	"context"
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/strata/pkg/adapter"
	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/model"
	"github.com/cuemby/strata/pkg/sequence"
)

// core is the untyped repository engine. The generic Repository facade
// delegates here so relation cascades can cross entity types without
// knowing them statically.
type core struct {
	meta   *model.Metadata
	ad     adapter.Adapter
	user   string
	logger zerolog.Logger
	obs    *observerSet
}

// observerSet is shared between a repository and its With-decorated
// copies so registration survives configuration overrides.
type observerSet struct {
	mu   sync.RWMutex
	list []Observer
}

func newCore(meta *model.Metadata, user string) (*core, error) {
	ad, err := adapter.Get(meta.Flavour)
	if err != nil {
		return nil, err
	}
	return &core{
		meta:   meta,
		ad:     ad,
		user:   user,
		logger: log.WithComponent("repository").With().Str("table", meta.Table).Logger(),
		obs:    &observerSet{},
	}, nil
}

// withConfig returns a decorated copy sharing the storage handle and
// observer registrations. A flavour override rebinds the adapter.
func (c *core) withConfig(user, flavour string) (*core, error) {
	out := *c
	if user != "" {
		out.user = user
	}
	if flavour != "" {
		ad, err := adapter.Get(flavour)
		if err != nil {
			return nil, err
		}
		out.ad = ad
	}
	return &out, nil
}

// coreFor resolves the engine for another entity type during cascades
func coreFor(typ reflect.Type, user string) (*core, error) {
	meta, ok := model.Lookup(typ)
	if !ok {
		return nil, errors.New(errors.KindValidation, "repository: type %s is not registered", typ)
	}
	return newCore(meta, user)
}

// guard rejects blocked operations before any adapter call
func (c *core) guard(op model.Operation) error {
	if c.meta.IsBlocked(op) {
		return errors.Blocked(c.meta.Table, string(op))
	}
	return nil
}

// opContext assembles the per-call context: operation kind, acting
// user, fresh uuid, timing.
func (c *core) opContext(ctx context.Context, op model.Operation) (context.Context, *adapter.OpContext) {
	oc := adapter.NewOpContext(op, c.user)
	return adapter.WithOp(ctx, oc), oc
}

// applyHooks runs the built-in server-populated fields, then the
// metadata-bound field hooks in composition order.
func (c *core) applyHooks(phase model.Phase, rec adapter.Record, prior adapter.Record, oc *adapter.OpContext) error {
	now := oc.StartedAt
	switch phase {
	case model.PhaseCreate:
		setIfColumn(c.meta, rec, model.ColCreatedAt, now)
		setIfColumn(c.meta, rec, model.ColUpdatedAt, now)
		setIfColumn(c.meta, rec, model.ColCreatedBy, oc.User)
		setIfColumn(c.meta, rec, model.ColUpdatedBy, oc.User)
		setIfColumn(c.meta, rec, model.ColVersion, int64(1))
	case model.PhaseUpdate:
		// createdAt/createdBy survive from the stored record; version
		// increments by exactly one per successful update.
		if prior != nil {
			if v, ok := prior[model.ColCreatedAt]; ok {
				rec[model.ColCreatedAt] = v
			}
			if v, ok := prior[model.ColCreatedBy]; ok {
				rec[model.ColCreatedBy] = v
			}
			setIfColumn(c.meta, rec, model.ColVersion, versionOf(prior)+1)
		}
		setIfColumn(c.meta, rec, model.ColUpdatedAt, now)
		setIfColumn(c.meta, rec, model.ColUpdatedBy, oc.User)
	}

	hc := model.HookContext{Operation: oc.Operation, User: oc.User, Now: now}
	for _, hook := range c.meta.HooksFor(phase) {
		if err := hook.Handler(hc, rec, hook.Field); err != nil {
			return errors.Wrap(errors.KindValidation, err, "%s: %s hook on %s", c.meta.Table, phase, hook.Field)
		}
	}
	return nil
}

func setIfColumn(m *model.Metadata, rec adapter.Record, column string, v interface{}) {
	if _, ok := m.FieldFor(column); ok {
		rec[column] = v
	}
}

func versionOf(rec adapter.Record) int64 {
	switch v := rec[model.ColVersion].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// allocateID fills an unset primary key from the table's own sequence.
// Serial sequences yield zero-padded 14-digit ids in monotonic order.
func (c *core) allocateID(ctx context.Context, id string) (string, error) {
	if !isZeroID(id) {
		return id, nil
	}
	seq, err := c.ad.Sequence(sequence.Options{
		Name:      c.meta.Table + "_pk",
		Kind:      c.meta.PK.Kind,
		StartWith: 1,
	})
	if err != nil {
		return "", err
	}
	v, err := seq.Next(ctx)
	if err != nil {
		return "", err
	}
	return adapter.SerialiseID(c.meta.PK.Kind, v)
}

func isZeroID(id string) bool {
	switch id {
	case "", "0", "00000000000000":
		return true
	}
	return false
}

// create runs the full create pipeline for one instance and returns the
// reverted stored instance.
func (c *core) create(ctx context.Context, instance interface{}) (interface{}, error) {
	if err := c.guard(model.OpCreate); err != nil {
		return nil, err
	}
	ctx, oc := c.opContext(ctx, model.OpCreate)

	rec, id, err := adapter.Prepare(c.meta, instance)
	if err != nil {
		return nil, err
	}
	id, err = c.allocateID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := c.applyHooks(model.PhaseCreate, rec, nil, oc); err != nil {
		return nil, err
	}

	pending, err := c.cascadeCreate(ctx, instance, rec)
	if err != nil {
		return nil, err
	}

	stored, err := c.ad.Create(ctx, c.meta.Table, id, rec)
	if err != nil {
		return nil, c.ad.ParseError(err)
	}

	if err := c.linkJunctions(ctx, id, pending); err != nil {
		return nil, err
	}

	out, err := adapter.Revert(c.meta, stored, id)
	if err != nil {
		return nil, err
	}
	c.notify(model.OpCreate, id, out, oc)
	return out, nil
}

// read loads one instance by id
func (c *core) read(ctx context.Context, id string) (interface{}, error) {
	if err := c.guard(model.OpRead); err != nil {
		return nil, err
	}
	rec, err := c.ad.Read(ctx, c.meta.Table, id)
	if err != nil {
		return nil, c.ad.ParseError(err)
	}
	out, err := adapter.Revert(c.meta, rec, id)
	if err != nil {
		return nil, err
	}
	return out, c.populate(ctx, id, out)
}

// update runs the full update pipeline. The primary key is immutable;
// the record is addressed by the instance's current id.
func (c *core) update(ctx context.Context, instance interface{}) (interface{}, error) {
	if err := c.guard(model.OpUpdate); err != nil {
		return nil, err
	}
	ctx, oc := c.opContext(ctx, model.OpUpdate)

	rec, id, err := adapter.Prepare(c.meta, instance)
	if err != nil {
		return nil, err
	}

	prior, err := c.ad.Read(ctx, c.meta.Table, id)
	if err != nil {
		return nil, c.ad.ParseError(err)
	}

	if err := c.applyHooks(model.PhaseUpdate, rec, prior, oc); err != nil {
		return nil, err
	}

	if err := c.cascadeUpdate(ctx, instance, rec, prior, id); err != nil {
		return nil, err
	}

	stored, err := c.ad.Update(ctx, c.meta.Table, id, rec)
	if err != nil {
		return nil, c.ad.ParseError(err)
	}

	out, err := adapter.Revert(c.meta, stored, id)
	if err != nil {
		return nil, err
	}
	c.notify(model.OpUpdate, id, out, oc)
	return out, nil
}

// del removes one instance by id, cascading per relation flags
func (c *core) del(ctx context.Context, id string) (interface{}, error) {
	if err := c.guard(model.OpDelete); err != nil {
		return nil, err
	}
	ctx, oc := c.opContext(ctx, model.OpDelete)

	prior, err := c.ad.Read(ctx, c.meta.Table, id)
	if err != nil {
		return nil, c.ad.ParseError(err)
	}

	if err := c.cascadeDelete(ctx, id, prior); err != nil {
		return nil, err
	}

	rec, err := c.ad.Delete(ctx, c.meta.Table, id)
	if err != nil {
		return nil, c.ad.ParseError(err)
	}

	out, err := adapter.Revert(c.meta, rec, id)
	if err != nil {
		return nil, err
	}
	c.notify(model.OpDelete, id, out, oc)
	return out, nil
}

// restore writes a record back verbatim; used by bulk rollback
func (c *core) restore(ctx context.Context, id string, rec adapter.Record) error {
	_, err := c.ad.Update(ctx, c.meta.Table, id, rec)
	if errors.IsNotFound(err) {
		_, err = c.ad.Create(ctx, c.meta.Table, id, rec)
	}
	return err
}

