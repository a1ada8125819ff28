package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"graph-persistence/internal/metadata"
)

// timeLayouts are tried in order when a time column comes back as text.
// The second layout is the one modernc.org/sqlite writes.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05.999999999",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// encodeColumn converts a field value or predicate literal into a SQL
// parameter. Collections become JSON text and references their id.
func encodeColumn(kind metadata.FieldKind, v any) (any, error) {
	if isNil(v) {
		return nil, nil
	}
	switch kind {
	case metadata.KindEntityRef:
		return metadata.RefID(v), nil
	case metadata.KindArray, metadata.KindCollection, metadata.KindMap:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s column: %w", kind, err)
		}
		return string(data), nil
	case metadata.KindEnum:
		if s, ok := v.(fmt.Stringer); ok {
			return s.String(), nil
		}
	}
	return v, nil
}

// decodeColumn converts a scanned column value back to the field's Go
// representation.
func decodeColumn(kind metadata.FieldKind, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch kind {
	case metadata.KindBoolean:
		switch v := raw.(type) {
		case int64:
			return v != 0, nil
		case float64:
			return v != 0, nil
		}
	case metadata.KindDate, metadata.KindDateTime, metadata.KindTime:
		if s, ok := raw.(string); ok {
			return parseTime(s)
		}
	case metadata.KindArray, metadata.KindCollection, metadata.KindMap:
		s, ok := raw.(string)
		if !ok {
			return raw, nil
		}
		return decodeJSONColumn(kind, []byte(s))
	}
	return raw, nil
}

func decodeJSONColumn(kind metadata.FieldKind, data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if kind == metadata.KindMap {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode %s column: %w", kind, err)
		}
		return m, nil
	}
	var l []any
	if err := dec.Decode(&l); err != nil {
		return nil, fmt.Errorf("decode %s column: %w", kind, err)
	}
	return l, nil
}

// encodeDocument renders an entity as one JSON document.
func encodeDocument(desc *metadata.Descriptor, entity any) ([]byte, error) {
	data, err := json.Marshal(desc.ToMap(entity))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", desc.EntityType, err)
	}
	return data, nil
}

// decodeDocument builds a fresh entity from a JSON document.
func decodeDocument(desc *metadata.Descriptor, data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", desc.EntityType, err)
	}
	entity := desc.New()
	for _, p := range desc.Paths() {
		raw, ok := doc[p.Name]
		if !ok || raw == nil {
			continue
		}
		v, err := decodeJSONValue(p.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", desc.EntityType, p.Name, err)
		}
		if err := p.Set(entity, v); err != nil {
			return nil, err
		}
	}
	return entity, nil
}

func decodeJSONValue(kind metadata.FieldKind, raw any) (any, error) {
	if n, ok := raw.(json.Number); ok && kind != metadata.KindArray && kind != metadata.KindCollection && kind != metadata.KindMap {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		return n.Float64()
	}
	switch kind {
	case metadata.KindDate, metadata.KindDateTime, metadata.KindTime:
		if s, ok := raw.(string); ok {
			return parseTime(s)
		}
	}
	return raw, nil
}

// rowToEntity builds a fresh entity from a scanned row.
func rowToEntity(desc *metadata.Descriptor, row map[string]any) (any, error) {
	entity := desc.New()
	for _, p := range desc.Paths() {
		v, err := decodeColumn(p.Kind, row[p.Column])
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", desc.EntityType, p.Name, err)
		}
		if v == nil {
			continue
		}
		if err := p.Set(entity, v); err != nil {
			return nil, err
		}
	}
	return entity, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
