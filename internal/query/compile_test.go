package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graph-persistence/internal/metadata"
)

// personDescriptor declares one field of every kind.
func personDescriptor(t *testing.T) *metadata.Descriptor {
	t.Helper()
	ref := metadata.RecordField("employer", metadata.KindEntityRef)
	ref.Target = "company"
	d, err := metadata.NewDescriptor("person", func() any { return metadata.NewRecord("person", "id") }, []*metadata.Path{
		metadata.RecordField("id", metadata.KindNumber),
		metadata.RecordField("active", metadata.KindBoolean),
		metadata.RecordField("name", metadata.KindString),
		metadata.RecordField("age", metadata.KindNumber),
		metadata.RecordField("born", metadata.KindDate),
		metadata.RecordField("seen_at", metadata.KindDateTime),
		metadata.RecordField("wakes", metadata.KindTime),
		metadata.RecordField("status", metadata.KindEnum),
		ref,
		metadata.RecordField("nicknames", metadata.KindArray),
		metadata.RecordField("tags", metadata.KindCollection),
		metadata.RecordField("attrs", metadata.KindMap),
		metadata.RecordField("blob", metadata.KindOther),
	})
	require.NoError(t, err)
	return d
}

var allKinds = map[string]metadata.FieldKind{
	"active":    metadata.KindBoolean,
	"name":      metadata.KindString,
	"age":       metadata.KindNumber,
	"born":      metadata.KindDate,
	"seen_at":   metadata.KindDateTime,
	"wakes":     metadata.KindTime,
	"status":    metadata.KindEnum,
	"employer":  metadata.KindEntityRef,
	"nicknames": metadata.KindArray,
	"tags":      metadata.KindCollection,
	"attrs":     metadata.KindMap,
	"blob":      metadata.KindOther,
}

func TestCompile_PagingUsesOffsetModuloLimit(t *testing.T) {
	// Regression: page number is offset % limit. Offset 25 with limit 10 is
	// page 5, not page 2.
	c, err := Compile(personDescriptor(t), ListLoadConfig{Limit: 10, Offset: 25})
	require.NoError(t, err)
	require.NotNil(t, c.Page)
	assert.Equal(t, PageRequest{Page: 5, Size: 10}, *c.Page)
}

func TestCompile_RejectsUnaddressablePages(t *testing.T) {
	d := personDescriptor(t)
	for _, cfg := range []ListLoadConfig{
		{Limit: 10, Offset: -3},
		{Offset: -1},
		{Limit: 1 << 40, Offset: 1<<40 - 1},
	} {
		_, err := Compile(d, cfg)
		var invalid *InvalidPageError
		assert.True(t, errors.As(err, &invalid), "limit %d offset %d: %v", cfg.Limit, cfg.Offset, err)
	}
}

func TestCompile_UnpagedHasNoPageRequest(t *testing.T) {
	c, err := Compile(personDescriptor(t), ListLoadConfig{Offset: 40})
	require.NoError(t, err)
	assert.Nil(t, c.Page)
	assert.Nil(t, c.Predicate)
	assert.Empty(t, c.Orders)
}

func TestCompile_SingleFilterIsNotWrapped(t *testing.T) {
	c, err := Compile(personDescriptor(t), ListLoadConfig{Filters: []FilterEntry{
		{FieldName: "name", Operator: OpEqual, Value: "ada"},
	}})
	require.NoError(t, err)
	cmp, ok := c.Predicate.(Compare)
	require.True(t, ok, "got %T", c.Predicate)
	assert.Equal(t, CmpEq, cmp.Cmp)
	assert.Equal(t, "ada", cmp.Value)
}

func TestCompile_FiltersAreAndedInInputOrder(t *testing.T) {
	c, err := Compile(personDescriptor(t), ListLoadConfig{Filters: []FilterEntry{
		{FieldName: "name", Operator: OpStartsWith, Value: "a"},
		{FieldName: "full_name", Operator: OpEqual, Value: "x", IsDynamic: true},
		{FieldName: "age", Operator: OpLowerThan, Value: 30},
	}})
	require.NoError(t, err)
	and, ok := c.Predicate.(And)
	require.True(t, ok, "got %T", c.Predicate)
	require.Len(t, and.Terms, 2)
	assert.Equal(t, "(name STARTS WITH a AND age < 30)", c.Predicate.String())
}

func TestCompile_DynamicFiltersAreSkipped(t *testing.T) {
	c, err := Compile(personDescriptor(t), ListLoadConfig{Filters: []FilterEntry{
		{FieldName: "not_a_field", Operator: OpLike, Value: 1, IsDynamic: true},
	}})
	require.NoError(t, err)
	assert.Nil(t, c.Predicate)
}

func TestCompile_InclusiveBoundsAreComposed(t *testing.T) {
	d := personDescriptor(t)

	ge, err := CompileFilter(d, FilterEntry{FieldName: "age", Operator: OpGreaterEqual, Value: 5})
	require.NoError(t, err)
	assert.Equal(t, "(age > 5 OR age = 5)", ge.String())

	le, err := CompileFilter(d, FilterEntry{FieldName: "age", Operator: OpLowerEqual, Value: 5})
	require.NoError(t, err)
	assert.Equal(t, "(age < 5 OR age = 5)", le.String())
}

func TestCompile_UnknownFieldForEveryKind(t *testing.T) {
	d := personDescriptor(t)
	for field := range allKinds {
		_, err := Compile(d, ListLoadConfig{Filters: []FilterEntry{
			{FieldName: field + "_missing", Operator: OpEqual, Value: 1},
		}})
		var unknown *UnknownFieldError
		require.True(t, errors.As(err, &unknown), "field %s: got %v", field, err)
		assert.Equal(t, "person", unknown.EntityType)
		assert.Equal(t, field+"_missing", unknown.Field)
	}
}

func TestCompile_UnknownOrderField(t *testing.T) {
	_, err := Compile(personDescriptor(t), ListLoadConfig{OrderBy: []OrderByEntry{{Field: "nope"}}})
	var unknown *UnknownFieldError
	assert.True(t, errors.As(err, &unknown))
}

func TestCompile_OperatorTable(t *testing.T) {
	scalar := []Operator{OpNull, OpNotNull, OpEqual, OpNotEqual, OpIn, OpNotIn}
	ordered := append(append([]Operator{}, scalar...), OpGreaterThan, OpGreaterEqual, OpLowerThan, OpLowerEqual)
	stringOps := append(append([]Operator{}, scalar...), OpEmpty, OpNotEmpty, OpStartsWith, OpEndsWith, OpContains, OpLike)

	allowed := map[metadata.FieldKind][]Operator{
		metadata.KindBoolean:    scalar,
		metadata.KindString:     stringOps,
		metadata.KindNumber:     ordered,
		metadata.KindDate:       ordered,
		metadata.KindDateTime:   ordered,
		metadata.KindTime:       ordered,
		metadata.KindEnum:       scalar,
		metadata.KindEntityRef:  scalar,
		metadata.KindArray:      scalar,
		metadata.KindCollection: scalar,
		metadata.KindMap:        scalar,
		metadata.KindOther:      scalar,
	}

	d := personDescriptor(t)
	for field, kind := range allKinds {
		ok := map[Operator]bool{}
		for _, op := range allowed[kind] {
			ok[op] = true
		}
		for op := OpNull; op <= OpLike; op++ {
			value := valueFor(op)
			_, err := CompileFilter(d, FilterEntry{FieldName: field, Operator: op, Value: value})
			if ok[op] {
				assert.NoError(t, err, "%s %s", kind, op)
				continue
			}
			var unsupported *UnsupportedOperatorError
			if assert.True(t, errors.As(err, &unsupported), "%s %s: got %v", kind, op, err) {
				assert.Equal(t, kind, unsupported.Kind)
				assert.Equal(t, op.String(), unsupported.Operator)
			}
		}
	}
}

func valueFor(op Operator) any {
	switch op {
	case OpIn, OpNotIn:
		return []int{1, 2}
	case OpStartsWith, OpEndsWith, OpContains, OpLike:
		return "x"
	}
	return 1
}

func TestCompile_InRequiresList(t *testing.T) {
	_, err := CompileFilter(personDescriptor(t), FilterEntry{FieldName: "age", Operator: OpIn, Value: 3})
	var invalid *InvalidValueError
	assert.True(t, errors.As(err, &invalid))
}

func TestCompile_InNormalisesTypedSlices(t *testing.T) {
	e, err := CompileFilter(personDescriptor(t), FilterEntry{FieldName: "name", Operator: OpNotIn, Value: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, e.(Compare).Value)
	assert.Equal(t, CmpNotIn, e.(Compare).Cmp)
}

func TestCompile_Orders(t *testing.T) {
	c, err := Compile(personDescriptor(t), ListLoadConfig{OrderBy: []OrderByEntry{
		{Field: "age", Direction: Desc},
		{Field: "name"},
	}})
	require.NoError(t, err)
	require.Len(t, c.Orders, 2)
	assert.Equal(t, "age", c.Orders[0].Path.Name)
	assert.True(t, c.Orders[0].Desc)
	assert.Equal(t, "name", c.Orders[1].Path.Name)
	assert.False(t, c.Orders[1].Desc)
}

func TestCompile_OrderingOnCollectionKindsIsRejected(t *testing.T) {
	for _, field := range []string{"nicknames", "tags", "attrs"} {
		_, err := Compile(personDescriptor(t), ListLoadConfig{OrderBy: []OrderByEntry{{Field: field}}})
		var unsupported *UnsupportedOperatorError
		require.True(t, errors.As(err, &unsupported), field)
		assert.Equal(t, "ORDER_BY", unsupported.Operator)
	}
}

func TestParseOperator(t *testing.T) {
	op, err := ParseOperator("greater_equal")
	require.NoError(t, err)
	assert.Equal(t, OpGreaterEqual, op)

	_, err = ParseOperator("BETWEEN")
	assert.Error(t, err)

	dir, err := ParseDirection("desc")
	require.NoError(t, err)
	assert.Equal(t, Desc, dir)
}
