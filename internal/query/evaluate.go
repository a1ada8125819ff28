package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"graph-persistence/internal/metadata"
)

// Evaluate reports whether entity satisfies e. Comparisons against a null
// field value are false, except for null tests, matching SQL semantics.
func Evaluate(e Expr, entity any) (bool, error) {
	switch n := e.(type) {
	case nil:
		return true, nil
	case And:
		for _, t := range n.Terms {
			ok, err := Evaluate(t, entity)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Or:
		for _, t := range n.Terms {
			ok, err := Evaluate(t, entity)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case Compare:
		return evalCompare(n, entity)
	}
	return false, fmt.Errorf("unsupported predicate node %T", e)
}

func evalCompare(c Compare, entity any) (bool, error) {
	v := FieldValue(c.Path, entity)
	switch c.Cmp {
	case CmpIsNull:
		return isNull(v), nil
	case CmpIsNotNull:
		return !isNull(v), nil
	}
	if isNull(v) {
		return false, nil
	}

	switch c.Cmp {
	case CmpEq:
		return equalValues(c.Path.Kind, v, c.Value), nil
	case CmpNe:
		if isNull(c.Value) {
			return false, nil
		}
		return !equalValues(c.Path.Kind, v, c.Value), nil
	case CmpIn, CmpNotIn:
		list, _ := toList(c.Value)
		found := false
		for _, item := range list {
			if equalValues(c.Path.Kind, v, item) {
				found = true
				break
			}
		}
		if c.Cmp == CmpIn {
			return found, nil
		}
		return !found, nil
	case CmpGt, CmpLt:
		n, err := CompareValues(v, c.Value)
		if err != nil {
			return false, fmt.Errorf("field %s: %w", c.Path.Name, err)
		}
		if c.Cmp == CmpGt {
			return n > 0, nil
		}
		return n < 0, nil
	}

	s, ok := v.(string)
	if !ok {
		return false, fmt.Errorf("field %s: %s needs a string value, got %T", c.Path.Name, c.Cmp, v)
	}
	lit, _ := c.Value.(string)
	switch c.Cmp {
	case CmpIsEmpty:
		return s == "", nil
	case CmpIsNotEmpty:
		return s != "", nil
	case CmpStartsWith:
		return strings.HasPrefix(s, lit), nil
	case CmpEndsWith:
		return strings.HasSuffix(s, lit), nil
	case CmpContains:
		return strings.Contains(s, lit), nil
	case CmpLike:
		re, err := likePattern(lit)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	}
	return false, fmt.Errorf("unsupported comparison %s", c.Cmp)
}

// FieldValue reads a path from entity, reducing references to their id.
func FieldValue(p *metadata.Path, entity any) any {
	v := p.Get(entity)
	if p.Kind == metadata.KindEntityRef {
		v = metadata.RefID(v)
	}
	return v
}

func isNull(v any) bool {
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

func equalValues(kind metadata.FieldKind, a, b any) bool {
	switch kind {
	case metadata.KindArray, metadata.KindCollection, metadata.KindMap:
		return jsonEqual(a, b)
	case metadata.KindEntityRef:
		b = metadata.RefID(b)
	}
	if n, err := CompareValues(a, b); err == nil {
		return n == 0
	}
	return reflect.DeepEqual(a, b)
}

func jsonEqual(a, b any) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// CompareValues orders two literals of the same kind. Numbers of any Go
// numeric type compare by value.
func CompareValues(a, b any) (int, error) {
	a, b = underlyingString(a), underlyingString(b)
	if n, ok := compareIntegers(a, b); ok {
		return n, nil
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		return cmpOrdered(fa, fb), nil
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			if s, isStringer := b.(fmt.Stringer); isStringer {
				return cmpOrdered(x, s.String()), nil
			}
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		return cmpOrdered(x, y), nil
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		return x.Compare(y), nil
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		}
		return 1, nil
	case fmt.Stringer:
		return CompareValues(x.String(), b)
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

// underlyingString reduces named string types, such as enum types, to string.
func underlyingString(v any) any {
	if v == nil {
		return nil
	}
	if _, ok := v.(string); ok {
		return v
	}
	if _, ok := v.(fmt.Stringer); ok {
		return v
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	return v
}

type integer struct {
	signed   int64
	unsigned uint64
	isSigned bool
}

func toInteger(v any) (integer, bool) {
	switch n := v.(type) {
	case int:
		return integer{signed: int64(n), isSigned: true}, true
	case int8:
		return integer{signed: int64(n), isSigned: true}, true
	case int16:
		return integer{signed: int64(n), isSigned: true}, true
	case int32:
		return integer{signed: int64(n), isSigned: true}, true
	case int64:
		return integer{signed: n, isSigned: true}, true
	case uint:
		return integer{unsigned: uint64(n)}, true
	case uint8:
		return integer{unsigned: uint64(n)}, true
	case uint16:
		return integer{unsigned: uint64(n)}, true
	case uint32:
		return integer{unsigned: uint64(n)}, true
	case uint64:
		return integer{unsigned: n}, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return integer{signed: i, isSigned: true}, true
		}
	}
	return integer{}, false
}

// compareIntegers orders two integral values exactly, without widening them
// to float64. ok is false unless both values are integers.
func compareIntegers(a, b any) (n int, ok bool) {
	x, ok := toInteger(a)
	if !ok {
		return 0, false
	}
	y, ok := toInteger(b)
	if !ok {
		return 0, false
	}
	switch {
	case x.isSigned && y.isSigned:
		return cmpOrdered(x.signed, y.signed), true
	case !x.isSigned && !y.isSigned:
		return cmpOrdered(x.unsigned, y.unsigned), true
	case x.isSigned:
		if x.signed < 0 {
			return -1, true
		}
		return cmpOrdered(uint64(x.signed), y.unsigned), true
	}
	if y.signed < 0 {
		return 1, true
	}
	return cmpOrdered(x.unsigned, uint64(y.signed)), true
}

func cmpOrdered[T int | int64 | uint64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

var likeCache sync.Map

// likePattern converts a SQL LIKE pattern (% and _ wildcards, backslash
// escape) into an anchored regular expression.
func likePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := likeCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	var b strings.Builder
	b.WriteString("(?s)^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("like pattern %q: %w", pattern, err)
	}
	likeCache.Store(pattern, re)
	return re, nil
}

// EscapeLike escapes LIKE wildcards in a literal so it matches verbatim.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
