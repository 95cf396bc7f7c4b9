package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/strata/pkg/model"
)

// indexFile is the on-disk shape of one derived index:
// {entries: {composite-key: [{value: id}]}}
type indexFile struct {
	Entries map[string][]indexEntry `json:"entries"`
}

type indexEntry struct {
	Value string `json:"value"`
}

func (a *Adapter) indexDir(table string) string {
	return filepath.Join(a.tableDir(table), "indexes")
}

func (a *Adapter) indexPath(table, name string) string {
	return filepath.Join(a.indexDir(table), encode(name)+".json")
}

func (a *Adapter) loadIndex(table, name string) (*indexFile, error) {
	data, err := os.ReadFile(a.indexPath(table, name))
	if err != nil {
		if os.IsNotExist(err) {
			return &indexFile{Entries: make(map[string][]indexEntry)}, nil
		}
		return nil, err
	}
	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string][]indexEntry)
	}
	return &idx, nil
}

func (a *Adapter) saveIndex(table, name string, idx *indexFile) error {
	data, err := a.marshal2(idx)
	if err != nil {
		return err
	}
	return a.writeAtomic(a.indexPath(table, name), data)
}

func (a *Adapter) marshal2(v interface{}) ([]byte, error) {
	if a.cfg.Indent == "" {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", a.cfg.Indent)
}

// compositeKey joins the record's indexed attribute values
func compositeKey(record map[string]interface{}, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprint(record[f])
	}
	return strings.Join(parts, "|")
}

// reindex refreshes every declared index of the table for one record
func (a *Adapter) reindex(table, id string, record map[string]interface{}) error {
	m, ok := model.LookupTable(table)
	if !ok || len(m.Indexes) == 0 {
		return nil
	}
	for _, decl := range m.Indexes {
		idx, err := a.loadIndex(table, decl.Name)
		if err != nil {
			return err
		}
		dropID(idx, id)
		key := compositeKey(record, decl.Fields)
		idx.Entries[key] = append(idx.Entries[key], indexEntry{Value: id})
		if err := a.saveIndex(table, decl.Name, idx); err != nil {
			return err
		}
	}
	return nil
}

// unindex removes a deleted record from every declared index
func (a *Adapter) unindex(table, id string) error {
	m, ok := model.LookupTable(table)
	if !ok || len(m.Indexes) == 0 {
		return nil
	}
	for _, decl := range m.Indexes {
		idx, err := a.loadIndex(table, decl.Name)
		if err != nil {
			return err
		}
		dropID(idx, id)
		if err := a.saveIndex(table, decl.Name, idx); err != nil {
			return err
		}
	}
	return nil
}

func dropID(idx *indexFile, id string) {
	for key, entries := range idx.Entries {
		kept := entries[:0]
		for _, e := range entries {
			if e.Value != id {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(idx.Entries, key)
		} else {
			idx.Entries[key] = kept
		}
	}
}
