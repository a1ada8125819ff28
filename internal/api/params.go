package api

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"graph-persistence/internal/metadata"
	"graph-persistence/internal/query"
)

// opAliases maps the operator suffix of filter[field.op] to an operator.
var opAliases = map[string]query.Operator{
	"eq":          query.OpEqual,
	"neq":         query.OpNotEqual,
	"gt":          query.OpGreaterThan,
	"gte":         query.OpGreaterEqual,
	"lt":          query.OpLowerThan,
	"lte":         query.OpLowerEqual,
	"in":          query.OpIn,
	"not_in":      query.OpNotIn,
	"null":        query.OpNull,
	"not_null":    query.OpNotNull,
	"empty":       query.OpEmpty,
	"not_empty":   query.OpNotEmpty,
	"starts_with": query.OpStartsWith,
	"ends_with":   query.OpEndsWith,
	"contains":    query.OpContains,
	"like":        query.OpLike,
}

func parseOperator(s string) (query.Operator, error) {
	if op, ok := opAliases[strings.ToLower(s)]; ok {
		return op, nil
	}
	return query.ParseOperator(s)
}

func parseFilterKey(key string) (string, string) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, "eq"
}

// RefIDKind reports how ids of a referenced entity type are represented.
type RefIDKind func(entityType string) metadata.IDStrategy

// ParseListConfig reads filter[field.op]=v, sort=-a,b, limit and offset.
// Filter values are coerced to the field's kind; unknown fields are passed
// through so the compiler reports them.
func ParseListConfig(c *fiber.Ctx, desc *metadata.Descriptor, refIDs RefIDKind) (query.ListLoadConfig, error) {
	var cfg query.ListLoadConfig

	queries := c.Queries()
	keys := make([]string, 0, len(queries))
	for key := range queries {
		if strings.HasPrefix(key, "filter[") && strings.HasSuffix(key, "]") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		field, opName := parseFilterKey(key[7 : len(key)-1])
		op, err := parseOperator(opName)
		if err != nil {
			return cfg, InvalidPayloadError(fmt.Sprintf("Unknown filter operator %q for %s", opName, field))
		}
		entry := query.FilterEntry{FieldName: field, Operator: op, Value: queries[key]}
		if desc.HasDynamic(field) {
			entry.IsDynamic = true
		} else if p, ok := desc.Resolve(field); ok {
			v, err := coerceFilterValue(p, op, queries[key], refIDs)
			if err != nil {
				return cfg, InvalidPayloadError(fmt.Sprintf("Invalid filter value for %s: %v", field, err))
			}
			entry.Value = v
		}
		cfg.Filters = append(cfg.Filters, entry)
	}

	if sortParam := c.Query("sort"); sortParam != "" {
		for _, part := range strings.Split(sortParam, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			entry := query.OrderByEntry{Field: part, Direction: query.Asc}
			if strings.HasPrefix(part, "-") {
				entry = query.OrderByEntry{Field: part[1:], Direction: query.Desc}
			}
			cfg.OrderBy = append(cfg.OrderBy, entry)
		}
	}

	var err error
	if cfg.Limit, err = nonNegative(c, "limit"); err != nil {
		return cfg, err
	}
	if cfg.Limit > MaxLimit {
		cfg.Limit = MaxLimit
	}
	if cfg.Offset, err = nonNegative(c, "offset"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// MaxLimit caps the page size a client may request.
const MaxLimit = 1000

func nonNegative(c *fiber.Ctx, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, InvalidPayloadError(fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}

func coerceFilterValue(p *metadata.Path, op query.Operator, raw string, refIDs RefIDKind) (any, error) {
	switch op {
	case query.OpNull, query.OpNotNull, query.OpEmpty, query.OpNotEmpty:
		return nil, nil
	case query.OpIn, query.OpNotIn:
		parts := strings.Split(raw, ",")
		out := make([]any, len(parts))
		for i, part := range parts {
			v, err := coerceScalar(p, strings.TrimSpace(part), refIDs)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case query.OpStartsWith, query.OpEndsWith, query.OpContains, query.OpLike:
		return raw, nil
	}
	return coerceScalar(p, raw, refIDs)
}

func coerceScalar(p *metadata.Path, raw string, refIDs RefIDKind) (any, error) {
	switch p.Kind {
	case metadata.KindNumber:
		return strconv.ParseFloat(raw, 64)
	case metadata.KindBoolean:
		return strconv.ParseBool(raw)
	case metadata.KindDate, metadata.KindDateTime, metadata.KindTime:
		return parseTemporal(p.Kind, raw)
	case metadata.KindEnum:
		if len(p.Values) > 0 && !contains(p.Values, raw) {
			return nil, fmt.Errorf("%q is not one of %s", raw, strings.Join(p.Values, ", "))
		}
		return raw, nil
	case metadata.KindEntityRef:
		if refIDs != nil && refIDs(p.Target) == metadata.IDSequence {
			return strconv.ParseInt(raw, 10, 64)
		}
		return raw, nil
	case metadata.KindArray, metadata.KindCollection, metadata.KindMap:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v, nil
		}
		return raw, nil
	}
	return raw, nil
}

func parseTemporal(kind metadata.FieldKind, raw string) (time.Time, error) {
	switch kind {
	case metadata.KindDate:
		return time.Parse(time.DateOnly, raw)
	case metadata.KindTime:
		return time.Parse(time.TimeOnly, raw)
	}
	return time.Parse(time.RFC3339Nano, raw)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// coerceProps converts JSON body values to field representations: temporal
// strings become time.Time and nested maps under reference fields are
// converted with the target descriptor.
func coerceProps(desc *metadata.Descriptor, props map[string]any, lookup func(string) (*metadata.Descriptor, error), depth int) error {
	if depth > 64 {
		return nil
	}
	for key, value := range props {
		p, ok := desc.Resolve(key)
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			switch p.Kind {
			case metadata.KindDate, metadata.KindDateTime, metadata.KindTime:
				t, err := parseTemporal(p.Kind, v)
				if err != nil {
					return InvalidPayloadError(fmt.Sprintf("Invalid value for %s: %v", key, err))
				}
				props[key] = t
			}
		case map[string]any:
			if p.Kind != metadata.KindEntityRef {
				continue
			}
			target, err := lookup(p.Target)
			if err != nil {
				return err
			}
			if err := coerceProps(target, v, lookup, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
