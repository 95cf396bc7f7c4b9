package repository

import (
	"context"

	"github.com/cuemby/strata/pkg/adapter"
	"github.com/cuemby/strata/pkg/errors"
)

// Bulk operations are all-or-nothing within the adapter's failure model:
// when an item fails, already-applied items are rolled back best-effort
// via inverse operations, newest first. Rollback failures are logged and
// the original error is surfaced.

func (c *core) createAll(ctx context.Context, instances []interface{}) ([]interface{}, error) {
	out := make([]interface{}, 0, len(instances))
	var doneIDs []string
	for _, instance := range instances {
		created, err := c.create(ctx, instance)
		if err != nil {
			c.rollbackCreates(ctx, doneIDs)
			return nil, err
		}
		_, id, perr := adapter.Prepare(c.meta, created)
		if perr == nil {
			doneIDs = append(doneIDs, id)
		}
		out = append(out, created)
	}
	return out, nil
}

func (c *core) rollbackCreates(ctx context.Context, ids []string) {
	for i := len(ids) - 1; i >= 0; i-- {
		if _, err := c.ad.Delete(ctx, c.meta.Table, ids[i]); err != nil && !errors.IsNotFound(err) {
			c.logger.Error().Err(err).Str("id", ids[i]).Msg("Bulk create rollback failed")
		}
	}
}

func (c *core) readAll(ctx context.Context, ids []string) ([]interface{}, error) {
	out := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		got, err := c.read(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, got)
	}
	return out, nil
}

type priorState struct {
	id  string
	rec adapter.Record
}

func (c *core) updateAll(ctx context.Context, instances []interface{}) ([]interface{}, error) {
	out := make([]interface{}, 0, len(instances))
	var priors []priorState
	for _, instance := range instances {
		_, id, err := adapter.Prepare(c.meta, instance)
		if err != nil {
			c.rollbackUpdates(ctx, priors)
			return nil, err
		}
		prior, err := c.ad.Read(ctx, c.meta.Table, id)
		if err != nil {
			c.rollbackUpdates(ctx, priors)
			return nil, c.ad.ParseError(err)
		}
		updated, err := c.update(ctx, instance)
		if err != nil {
			c.rollbackUpdates(ctx, priors)
			return nil, err
		}
		priors = append(priors, priorState{id: id, rec: prior})
		out = append(out, updated)
	}
	return out, nil
}

func (c *core) rollbackUpdates(ctx context.Context, priors []priorState) {
	for i := len(priors) - 1; i >= 0; i-- {
		if err := c.restore(ctx, priors[i].id, priors[i].rec); err != nil {
			c.logger.Error().Err(err).Str("id", priors[i].id).Msg("Bulk update rollback failed")
		}
	}
}

func (c *core) deleteAll(ctx context.Context, ids []string) ([]interface{}, error) {
	out := make([]interface{}, 0, len(ids))
	var removed []priorState
	for _, id := range ids {
		prior, err := c.ad.Read(ctx, c.meta.Table, id)
		if err != nil {
			c.rollbackDeletes(ctx, removed)
			return nil, c.ad.ParseError(err)
		}
		deleted, err := c.del(ctx, id)
		if err != nil {
			c.rollbackDeletes(ctx, removed)
			return nil, err
		}
		removed = append(removed, priorState{id: id, rec: prior})
		out = append(out, deleted)
	}
	return out, nil
}

func (c *core) rollbackDeletes(ctx context.Context, removed []priorState) {
	for i := len(removed) - 1; i >= 0; i-- {
		if _, err := c.ad.Create(ctx, c.meta.Table, removed[i].id, removed[i].rec); err != nil && !errors.IsConflict(err) {
			c.logger.Error().Err(err).Str("id", removed[i].id).Msg("Bulk delete rollback failed")
		}
	}
}

