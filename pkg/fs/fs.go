package fs

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/strata/pkg/adapter"
	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/lock"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/model"
	"github.com/cuemby/strata/pkg/query"
)

// Flavour is the registry tag of the filesystem adapter
const Flavour = "fs"

// Config holds filesystem adapter construction options
type Config struct {
	Root   string
	Alias  string
	Indent string
}

// DefaultConfig returns sensible defaults rooted at dir
func DefaultConfig(dir string) Config {
	return Config{Root: dir, Alias: "default", Indent: "  "}
}

// document is the on-disk shape of one record
type document struct {
	Record   map[string]interface{} `json:"record"`
	Metadata documentMeta           `json:"metadata"`
}

type documentMeta struct {
	PK pkEnvelope `json:"pk"`
}

// pkEnvelope round-trips the primary key as {type, value}
type pkEnvelope struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Adapter stores one JSON file per record under
// <root>/<alias>/<table>/<encoded-id>.json. Writes are atomic
// (tmp + rename) and serialised per table through file locks.
type Adapter struct {
	adapter.Base

	cfg    Config
	locks  *lock.FileMultiLock
	logger zerolog.Logger
}

// New creates and binds a filesystem adapter
func New(cfg Config) *Adapter {
	if cfg.Alias == "" {
		cfg.Alias = "default"
	}
	a := &Adapter{
		Base:   adapter.NewBase(Flavour),
		cfg:    cfg,
		locks:  lock.NewFileMultiLock(filepath.Join(cfg.Root, cfg.Alias, ".locks")),
		logger: log.WithComponent("fs"),
	}
	a.Bind(a)
	adapter.Register(a)
	return a
}

func encode(s string) string {
	return url.QueryEscape(s)
}

func (a *Adapter) tableDir(table string) string {
	return filepath.Join(a.cfg.Root, a.cfg.Alias, encode(table))
}

func (a *Adapter) recordPath(table, id string) string {
	return filepath.Join(a.tableDir(table), encode(id)+".json")
}

// Initialize creates the alias root
func (a *Adapter) Initialize(ctx context.Context) error {
	return os.MkdirAll(filepath.Join(a.cfg.Root, a.cfg.Alias), 0o700)
}

// Shutdown is a no-op; every write is already durable
func (a *Adapter) Shutdown(ctx context.Context) error { return nil }

// writeAtomic writes data next to path and renames it into place
func (a *Adapter) writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (a *Adapter) marshal(doc *document) ([]byte, error) {
	if a.cfg.Indent == "" {
		return json.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", a.cfg.Indent)
}

func (a *Adapter) load(table, id string) (*document, error) {
	data, err := os.ReadFile(a.recordPath(table, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(table, id)
		}
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (a *Adapter) pkKind(table string) string {
	if m, ok := model.LookupTable(table); ok {
		return string(m.PK.Kind)
	}
	return string(model.PKString)
}

// Create writes a new record document, failing with Conflict on an
// existing id.
func (a *Adapter) Create(ctx context.Context, table, id string, record adapter.Record) (adapter.Record, error) {
	err := a.locks.Execute(ctx, table, func() error {
		if _, err := os.Stat(a.recordPath(table, id)); err == nil {
			return errors.Conflict(table, id)
		}
		return a.store(table, id, record)
	})
	if err != nil {
		return nil, a.ParseError(err)
	}
	return record, nil
}

// Read loads a record document
func (a *Adapter) Read(ctx context.Context, table, id string) (adapter.Record, error) {
	doc, err := a.load(table, id)
	if err != nil {
		return nil, a.ParseError(err)
	}
	return doc.Record, nil
}

// Update rewrites an existing record document
func (a *Adapter) Update(ctx context.Context, table, id string, record adapter.Record) (adapter.Record, error) {
	err := a.locks.Execute(ctx, table, func() error {
		if _, err := a.load(table, id); err != nil {
			return err
		}
		return a.store(table, id, record)
	})
	if err != nil {
		return nil, a.ParseError(err)
	}
	return record, nil
}

// Delete removes a record document and its index entries
func (a *Adapter) Delete(ctx context.Context, table, id string) (adapter.Record, error) {
	var out adapter.Record
	err := a.locks.Execute(ctx, table, func() error {
		doc, err := a.load(table, id)
		if err != nil {
			return err
		}
		if err := os.Remove(a.recordPath(table, id)); err != nil {
			return err
		}
		out = doc.Record
		return a.unindex(table, id)
	})
	if err != nil {
		return nil, a.ParseError(err)
	}
	return out, nil
}

// store writes the document and refreshes the table's index files
func (a *Adapter) store(table, id string, record adapter.Record) error {
	doc := &document{
		Record:   record,
		Metadata: documentMeta{PK: pkEnvelope{Type: a.pkKind(table), Value: id}},
	}
	data, err := a.marshal(doc)
	if err != nil {
		return err
	}
	if err := a.writeAtomic(a.recordPath(table, id), data); err != nil {
		return err
	}
	return a.reindex(table, id, record)
}

// list loads every record of a table in file-name order; the id is
// inlined under the pk column.
func (a *Adapter) list(table string) ([]adapter.Record, error) {
	entries, err := os.ReadDir(a.tableDir(table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	col := "id"
	if m, ok := model.LookupTable(table); ok {
		col = m.PK.Column
	}
	var out []adapter.Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := url.QueryUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		doc, err := a.load(table, id)
		if err != nil {
			return nil, err
		}
		rec := doc.Record
		rec[col] = id
		out = append(out, rec)
	}
	return out, nil
}

// Raw interprets a compiled plan over the table directory
func (a *Adapter) Raw(ctx context.Context, plan *query.Plan) (interface{}, error) {
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
