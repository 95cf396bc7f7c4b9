package adapter

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"time"

	"github.com/cuemby/strata/pkg/errors"
	"github.com/cuemby/strata/pkg/model"
)

// SerialiseID renders a primary key value as its adapter-boundary string.
// Serial ids are zero-padded 14-digit decimals.
func SerialiseID(kind model.PKKind, v interface{}) (string, error) {
	switch kind {
	case model.PKSerial:
		n, ok := asInt64(v)
		if !ok {
			return "", errors.New(errors.KindValidation, "serial id must be an integer, got %T", v)
		}
		return fmt.Sprintf("%014d", n), nil
	case model.PKNumber, model.PKBigint:
		if b, ok := v.(*big.Int); ok {
			return b.String(), nil
		}
		n, ok := asInt64(v)
		if !ok {
			return "", errors.New(errors.KindValidation, "numeric id must be an integer, got %T", v)
		}
		return strconv.FormatInt(n, 10), nil
	case model.PKString, model.PKUUID:
		s, ok := v.(string)
		if !ok {
			return "", errors.New(errors.KindValidation, "string id must be a string, got %T", v)
		}
		return s, nil
	}
	return "", errors.New(errors.KindValidation, "unknown pk kind %q", kind)
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// Prepare flattens a model instance into its stored record and serialised
// primary key. Relation fields never enter the record; cascades are the
// repository's concern.
func Prepare(m *model.Metadata, instance interface{}) (Record, string, error) {
	v := reflect.ValueOf(instance)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, "", errors.New(errors.KindValidation, "%s: nil instance", m.Table)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, "", errors.New(errors.KindValidation, "%s: instance must be a struct", m.Table)
	}

	rec := make(Record, len(m.Columns))
	for _, c := range m.Columns {
		f := v.FieldByName(c.Field)
		if !f.IsValid() {
			continue
		}
		rec[c.Column] = f.Interface()
	}

	pkField := v.FieldByName(m.PK.Field)
	if !pkField.IsValid() {
		return nil, "", errors.New(errors.KindValidation, "%s: missing pk field %s", m.Table, m.PK.Field)
	}
	id, err := SerialiseID(m.PK.Kind, pkField.Interface())
	if err != nil {
		return nil, "", err
	}
	return rec, id, nil
}

// Revert rebuilds a model instance from its stored record and id.
// Returns a pointer to a fresh instance of the metadata's type; synthetic
// entities revert to a plain record copy with the id inlined.
func Revert(m *model.Metadata, rec Record, id string) (interface{}, error) {
	if m.Synthetic || m.Type == nil {
		out := make(Record, len(rec)+1)
		for k, v := range rec {
			out[k] = v
		}
		out[m.PK.Column] = id
		return out, nil
	}

	ptr := reflect.New(m.Type)
	v := ptr.Elem()

	for _, c := range m.Columns {
		raw, ok := rec[c.Column]
		if !ok || raw == nil {
			continue
		}
		f := v.FieldByName(c.Field)
		if !f.IsValid() || !f.CanSet() {
			continue
		}
		if err := setField(f, raw); err != nil {
			return nil, errors.Wrap(errors.KindInternal, err, "%s: revert column %s", m.Table, c.Column)
		}
	}

	pkField := v.FieldByName(m.PK.Field)
	if pkField.IsValid() && pkField.CanSet() {
		if err := setPK(pkField, m.PK.Kind, id); err != nil {
			return nil, err
		}
	}
	return ptr.Interface(), nil
}

func setPK(f reflect.Value, kind model.PKKind, id string) error {
	switch f.Kind() {
	case reflect.String:
		f.SetString(id)
		return nil
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return errors.Wrap(errors.KindInternal, err, "parse %s id %q", kind, id)
		}
		f.SetInt(n)
		return nil
	}
	return errors.New(errors.KindInternal, "unsupported pk field kind %s", f.Kind())
}

// setField assigns a stored value to a struct field, bridging the type
// widening JSON round-trips introduce (every number comes back float64,
// every timestamp a string).
func setField(f reflect.Value, raw interface{}) error {
	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(f.Type()) {
		f.Set(rv)
		return nil
	}
	if rv.Type().ConvertibleTo(f.Type()) && f.Kind() != reflect.String {
		f.Set(rv.Convert(f.Type()))
		return nil
	}

	switch f.Interface().(type) {
	case time.Time:
		if s, ok := raw.(string); ok {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return err
			}
			f.Set(reflect.ValueOf(t))
			return nil
		}
	case *big.Int:
		if s, ok := raw.(string); ok {
			b, ok := new(big.Int).SetString(s, 10)
			if !ok {
				return fmt.Errorf("invalid bigint %q", s)
			}
			f.Set(reflect.ValueOf(b))
			return nil
		}
	}

	switch f.Kind() {
	case reflect.Slice:
		if items, ok := raw.([]interface{}); ok {
			out := reflect.MakeSlice(f.Type(), len(items), len(items))
			for i, item := range items {
				if err := setField(out.Index(i), item); err != nil {
					return err
				}
			}
			f.Set(out)
			return nil
		}
	case reflect.Map:
		if entries, ok := raw.(map[string]interface{}); ok && f.Type().Key().Kind() == reflect.String {
			out := reflect.MakeMapWithSize(f.Type(), len(entries))
			for k, item := range entries {
				ev := reflect.New(f.Type().Elem()).Elem()
				if err := setField(ev, item); err != nil {
					return err
				}
				out.SetMapIndex(reflect.ValueOf(k), ev)
			}
			f.Set(out)
			return nil
		}
	}

	// Last resort for structured values that crossed a JSON boundary:
	// round-trip through encoding/json into the field's type.
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("cannot assign %T to %s", raw, f.Type())
	}
	target := reflect.New(f.Type())
	if err := json.Unmarshal(data, target.Interface()); err != nil {
		return fmt.Errorf("cannot assign %T to %s: %w", raw, f.Type(), err)
	}
	f.Set(target.Elem())
	return nil
}
