package repository

import (
	"context"

	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/model"
	"github.com/cuemby/strata/pkg/query"
)

// FindBy executes a method-name query such as
// findByAgeGreaterThanAndActiveOrderByAgeDesc. Positional arguments are
// consumed left-to-right by the parsed conditions; pageBy methods
// reserve the two trailing arguments for direction and page size and
// return a *query.Paginator.
func (r *Repository[T]) FindBy(ctx context.Context, name string, args ...interface{}) (interface{}, error) {
	if err := r.c.guard(model.OpRead); err != nil {
		return nil, err
	}
	plan, err := query.ParseMethod(name)
	if err != nil {
		return nil, err
	}

	if plan.Action == query.ActionPage {
		return r.pageBy(plan, args...)
	}

	stmt, err := plan.Statement(r.c.meta.Table, args...)
	if err != nil {
		return nil, err
	}

	if plan.Action == query.ActionFind {
		return r.ExecuteInto(ctx, stmt)
	}
	return stmt.Execute(ctx, r.c.ad)
}

// ListBy is FindBy for find-action methods, typed to the entity
func (r *Repository[T]) ListBy(ctx context.Context, name string, args ...interface{}) ([]*T, error) {
	res, err := r.FindBy(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	out, ok := res.([]*T)
	if !ok {
		return nil, errors.New(errors.KindQuery, "%s: method %q is not a find query", r.c.meta.Table, name)
	}
	return out, nil
}

// pageBy peels the reserved trailing (direction, size) parameters, binds
// the rest and hands back a paginator. Methods without an OrderBy clause
// are ordered by primary key in the given direction.
func (r *Repository[T]) pageBy(plan *query.MethodPlan, args ...interface{}) (*query.Paginator, error) {
	if len(args) < 2 {
		return nil, errors.New(errors.KindPaging, "pageBy needs trailing direction and page size parameters")
	}
	condArgs, tail := args[:len(args)-2], args[len(args)-2:]

	dir, ok := tail[0].(model.Direction)
	if !ok {
		return nil, errors.New(errors.KindPaging, "pageBy direction must be a sort direction, got %T", tail[0])
	}
	size, ok := tail[1].(int)
	if !ok {
		return nil, errors.New(errors.KindPaging, "pageBy size must be an int, got %T", tail[1])
	}

	stmt, err := plan.Statement(r.c.meta.Table, condArgs...)
	if err != nil {
		return nil, err
	}
	if len(plan.OrderBy) == 0 {
		stmt.OrderBy(r.c.meta.PK.Column, dir)
	}
	return r.c.ad.Paginator(stmt, size)
}
