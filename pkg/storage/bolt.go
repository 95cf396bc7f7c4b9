package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/strata/pkg/adapter"
	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/model"
	"github.com/cuemby/strata/pkg/query"
)

// Flavour is the registry tag of the BoltDB adapter
const Flavour = "bolt"

// BoltAdapter implements the adapter contract using BoltDB: one bucket
// per table, records serialized as JSON. BoltDB serialises writers, so
// the adapter needs no advisory lock of its own.
type BoltAdapter struct {
	adapter.Base
	db *bolt.DB
}

// NewBoltAdapter opens (or creates) the database file under dataDir
func NewBoltAdapter(dataDir string) (*BoltAdapter, error) {
	dbPath := filepath.Join(dataDir, "strata.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &BoltAdapter{Base: adapter.NewBase(Flavour), db: db}
	a.Bind(a)
	adapter.Register(a)
	return a, nil
}

// Initialize is a no-op; buckets are created on first write
func (a *BoltAdapter) Initialize(ctx context.Context) error { return nil }

// Shutdown closes the database
func (a *BoltAdapter) Shutdown(ctx context.Context) error {
	return a.db.Close()
}

// Create inserts a new record, failing with Conflict when id exists
func (a *BoltAdapter) Create(ctx context.Context, table, id string, record adapter.Record) (adapter.Record, error) {
	err := a.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(table))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", table, err)
		}
		if b.Get([]byte(id)) != nil {
			return errors.Conflict(table, id)
		}
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return nil, a.ParseError(err)
	}
	return record, nil
}

// Read loads a record by id
func (a *BoltAdapter) Read(ctx context.Context, table, id string) (adapter.Record, error) {
	var record adapter.Record
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return errors.NotFound(table, id)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return errors.NotFound(table, id)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, a.ParseError(err)
	}
	return record, nil
}

// Update rewrites an existing record
func (a *BoltAdapter) Update(ctx context.Context, table, id string, record adapter.Record) (adapter.Record, error) {
	err := a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil || b.Get([]byte(id)) == nil {
			return errors.NotFound(table, id)
		}
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return nil, a.ParseError(err)
	}
	return record, nil
}

// Delete removes and returns a record
func (a *BoltAdapter) Delete(ctx context.Context, table, id string) (adapter.Record, error) {
	var record adapter.Record
	err := a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return errors.NotFound(table, id)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return errors.NotFound(table, id)
		}
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return nil, a.ParseError(err)
	}
	return record, nil
}

// list materialises every record of a table in key order with the id
// inlined under the pk column.
func (a *BoltAdapter) list(table string) ([]adapter.Record, error) {
	col := "id"
	if m, ok := model.LookupTable(table); ok {
		col = m.PK.Column
	}
	var records []adapter.Record
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec adapter.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			rec[col] = string(k)
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

// Raw interprets a compiled plan over a full bucket scan
func (a *BoltAdapter) Raw(ctx context.Context, plan *query.Plan) (interface{}, error) {
	records, err := a.list(plan.From)
	if err != nil {
		return nil, a.ParseError(err)
	}

	if plan.Where != nil {
		pred, err := plan.Where.Compile()
		if err != nil {
			return nil, a.ParseError(err)
		}
		kept := records[:0]
		for _, rec := range records {
			ok, err := pred(rec)
			if err != nil {
				return nil, a.ParseError(err)
			}
			if ok {
				kept = append(kept, rec)
			}
		}
		records = kept
	}

	if len(plan.Sort) > 0 {
		if err := query.SortRecords(records, plan.Sort); err != nil {
			return nil, a.ParseError(err)
		}
	}

	records = plan.Slice(records)

	if plan.Aggregate != nil {
		res, err := plan.Reduce(records)
		if err != nil {
			return nil, a.ParseError(err)
		}
		return res, nil
	}
	return plan.Project(records), nil
}
