package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/adapter"
	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/model"
	"github.com/cuemby/strata/pkg/query"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a := New(DefaultConfig(t.TempDir()))
	require.NoError(t, a.Initialize(context.Background()))
	return a
}

func TestCRUDRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	rec := adapter.Record{"name": "test", "age": float64(30)}
	_, err := a.Create(ctx, "users", "u1", rec)
	require.NoError(t, err)

	got, err := a.Read(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "test", got["name"])
	assert.Equal(t, float64(30), got["age"])

	got["name"] = "test2"
	_, err = a.Update(ctx, "users", "u1", got)
	require.NoError(t, err)

	again, err := a.Read(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "test2", again["name"])

	_, err = a.Delete(ctx, "users", "u1")
	require.NoError(t, err)
	_, err = a.Read(ctx, "users", "u1")
	assert.True(t, errors.IsNotFound(err))
}

func TestConflictAndNotFound(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.Create(ctx, "t", "1", adapter.Record{})
	require.NoError(t, err)
	_, err = a.Create(ctx, "t", "1", adapter.Record{})
	assert.True(t, errors.IsConflict(err))

	_, err = a.Update(ctx, "t", "ghost", adapter.Record{})
	assert.True(t, errors.IsNotFound(err))
	_, err = a.Delete(ctx, "t", "ghost")
	assert.True(t, errors.IsNotFound(err))
}

// TestLayout verifies the on-disk shape: one pretty-printed JSON
// document per record with the pk round-tripped as {type, value}, under
// percent-encoded file names.
func TestLayout(t *testing.T) {
	root := t.TempDir()
	a := New(Config{Root: root, Alias: "main", Indent: "  "})
	require.NoError(t, a.Initialize(context.Background()))

	_, err := a.Create(context.Background(), "users", "a/b", adapter.Record{"name": "enc"})
	require.NoError(t, err)

	path := filepath.Join(root, "main", "users", "a%2Fb.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Record   map[string]interface{} `json:"record"`
		Metadata struct {
			PK struct {
				Type  string `json:"type"`
				Value string `json:"value"`
			} `json:"pk"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "enc", doc.Record["name"])
	assert.Equal(t, "a/b", doc.Metadata.PK.Value)

	// no stray tmp file once the rename landed
	entries, err := os.ReadDir(filepath.Join(root, "main", "users"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestRawOverFiles(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()
	for i, name := range []string{"ana", "bob", "cal"} {
		_, err := a.Create(ctx, "people", name, adapter.Record{"rank": float64(i)})
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
	assert.Equal(t, "bob", rows[1]["id"])
}

type Indexed struct {
	ID      string
	Country string
	City    string
}

// TestIndexMaintenance verifies index files track writes and deletes
func TestIndexMaintenance(t *testing.T) {
	_, err := model.Describe[Indexed]().
		Table("indexed").
		PK("ID", model.PKString).
		Index("by_location", []string{"country", "city"}, nil).
		Register()
	require.NoError(t, err)

	root := t.TempDir()
	a := New(Config{Root: root, Alias: "default", Indent: "  "})
	require.NoError(t, a.Initialize(context.Background()))
	ctx := context.Background()

	_, err = a.Create(ctx, "indexed", "1", adapter.Record{"country": "pt", "city": "porto"})
	require.NoError(t, err)
	_, err = a.Create(ctx, "indexed", "2", adapter.Record{"country": "pt", "city": "porto"})
	require.NoError(t, err)

	idxPath := filepath.Join(root, "default", "indexed", "indexes", "by_location.json")
	data, err := os.ReadFile(idxPath)
	require.NoError(t, err)

	var idx struct {
		Entries map[string][]struct {
			Value string `json:"value"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(data, &idx))
	require.Len(t, idx.Entries["pt|porto"], 2)

	// moving a record re-keys its entry
	_, err = a.Update(ctx, "indexed", "2", adapter.Record{"country": "pt", "city": "lisbon"})
	require.NoError(t, err)
	data, err = os.ReadFile(idxPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &idx))
	assert.Len(t, idx.Entries["pt|porto"], 1)
	assert.Len(t, idx.Entries["pt|lisbon"], 1)

	// deleting drops the entry
	_, err = a.Delete(ctx, "indexed", "1")
	require.NoError(t, err)
	data, err = os.ReadFile(idxPath)
	require.NoError(t, err)
	// decode into a fresh map: json.Unmarshal keeps existing map keys
	idx.Entries = nil
	require.NoError(t, json.Unmarshal(data, &idx))
	_, ok := idx.Entries["pt|porto"]
	assert.False(t, ok)
}
