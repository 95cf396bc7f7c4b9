package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/adapter"
	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/model"
	"github.com/cuemby/strata/pkg/query"
)

func newTestStore(t *testing.T) *BoltAdapter {
	t.Helper()
	a, err := NewBoltAdapter(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestBoltCRUDRoundTrip(t *testing.T) {
	a := newTestStore(t)
	ctx := context.Background()

	rec := adapter.Record{"name": "test", "nif": "123456789"}
	_, err := a.Create(ctx, "clients", "1", rec)
	require.NoError(t, err)

	got, err := a.Read(ctx, "clients", "1")
	require.NoError(t, err)
	assert.Equal(t, "test", got["name"])

	got["name"] = "test2"
	_, err = a.Update(ctx, "clients", "1", got)
	require.NoError(t, err)

	again, err := a.Read(ctx, "clients", "1")
	require.NoError(t, err)
	assert.Equal(t, "test2", again["name"])
	assert.Equal(t, "123456789", again["nif"])

	deleted, err := a.Delete(ctx, "clients", "1")
	require.NoError(t, err)
	assert.Equal(t, "test2", deleted["name"])

	_, err = a.Read(ctx, "clients", "1")
	assert.True(t, errors.IsNotFound(err))
}

func TestBoltConflict(t *testing.T) {
	a := newTestStore(t)
	ctx := context.Background()

	_, err := a.Create(ctx, "t", "x", adapter.Record{"v": 1})
	require.NoError(t, err)
	_, err = a.Create(ctx, "t", "x", adapter.Record{"v": 2})
	assert.True(t, errors.IsConflict(err))
}

func TestBoltSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a, err := NewBoltAdapter(dir)
	require.NoError(t, err)
	_, err = a.Create(ctx, "t", "1", adapter.Record{"v": "kept"})
	require.NoError(t, err)
	require.NoError(t, a.Shutdown(ctx))

	b, err := NewBoltAdapter(dir)
	require.NoError(t, err)
	defer b.Shutdown(ctx)

	got, err := b.Read(ctx, "t", "1")
	require.NoError(t, err)
	assert.Equal(t, "kept", got["v"])
}

func TestBoltRaw(t *testing.T) {
	a := newTestStore(t)
	ctx := context.Background()
	for i, name := range []string{"ana", "bob", "cal"} {
		_, err := a.Create(ctx, "people", name, adapter.Record{"rank": i})
		require.NoError(t, err)
	}

	res, err := a.Raw(ctx, &query.Plan{
		From:  "people",
		Where: query.Attr("rank").Gt(float64(0)),
		Sort:  []query.Order{{Field: "rank", Dir: model.Desc}},
		Limit: -1,
	})
	require.NoError(t, err)
	rows := res.([]map[string]interface{})
	require.Len(t, rows, 2)
	assert.Equal(t, "cal", rows[0]["id"])

	count, err := a.Raw(ctx, &query.Plan{
		From: "people", Limit: -1,
		Aggregate: &query.Aggregate{Kind: query.AggCount},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
