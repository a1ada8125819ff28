package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customerYAML = `
entities:
  - entity: customer
    table: customers
    id: {field: id, strategy: sequence}
    storage: sql
    fields:
      - name: name
        kind: string
      - name: age
        kind: number
      - name: status
        kind: enum
        values: [active, inactive]
      - name: address
        kind: entityRef
        target: address
      - name: tags
        kind: array
    dynamic:
      - name: full_name
        expression: '{"name": value}'
  - entity: address
    id: {strategy: ulid}
    storage: redis
    fields:
      - name: city
        kind: string
`

func TestParseDescriptors_BuildsRecordDescriptors(t *testing.T) {
	descs, err := ParseDescriptors([]byte(customerYAML))
	require.NoError(t, err)
	require.Len(t, descs, 2)

	customer := descs[0]
	assert.Equal(t, "customer", customer.EntityType)
	assert.Equal(t, "customers", customer.Table)
	assert.Equal(t, IDSequence, customer.IDStrategy)
	assert.Equal(t, StorageSQL, customer.Storage)
	assert.Equal(t, []string{"id", "name", "age", "status", "address", "tags"}, customer.FieldNames())
	assert.True(t, customer.HasDynamic("full_name"))

	id, ok := customer.Resolve("id")
	require.True(t, ok)
	assert.Equal(t, KindNumber, id.Kind)

	ref, ok := customer.Resolve("address")
	require.True(t, ok)
	assert.Equal(t, KindEntityRef, ref.Kind)
	assert.Equal(t, "address", ref.Target)

	status, _ := customer.Resolve("status")
	assert.Equal(t, []string{"active", "inactive"}, status.Values)

	address := descs[1]
	assert.Equal(t, "address", address.Table)
	assert.Equal(t, IDULID, address.IDStrategy)
	assert.Equal(t, StorageRedis, address.Storage)
	addrID, _ := address.Resolve("id")
	assert.Equal(t, KindString, addrID.Kind)
}

func TestParseDescriptors_RecordInstances(t *testing.T) {
	descs, err := ParseDescriptors([]byte(customerYAML))
	require.NoError(t, err)
	customer := descs[0]

	e := customer.New()
	rec, ok := e.(*Record)
	require.True(t, ok, "expected *Record, got %T", e)
	assert.Equal(t, "customer", rec.EntityType())

	name, _ := customer.Resolve("name")
	require.NoError(t, name.Set(e, "Ada"))
	require.NoError(t, customer.SetID(e, int64(7)))
	assert.Equal(t, "Ada", name.Get(e))
	assert.Equal(t, int64(7), rec.EntityID())
	assert.Equal(t, []string{"id", "name"}, rec.Keys())

	// fresh instance each call
	assert.Nil(t, name.Get(customer.New()))
}

func TestParseDescriptors_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown kind": `
entities:
  - entity: a
    fields: [{name: x, kind: blob}]`,
		"ref without target": `
entities:
  - entity: a
    fields: [{name: x, kind: entityRef}]`,
		"duplicate field": `
entities:
  - entity: a
    fields: [{name: x, kind: string}, {name: x, kind: number}]`,
		"bad strategy": `
entities:
  - entity: a
    id: {strategy: random}`,
		"bad storage": `
entities:
  - entity: a
    storage: cassandra`,
		"missing name": `
entities:
  - table: a`,
		"malformed": `entities: [`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDescriptors([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestNewDirectoryScanner_RequiresSources(t *testing.T) {
	_, err := NewDirectoryScanner(nil)
	assert.ErrorIs(t, err, ErrNoSources)

	_, err = NewDirectoryScanner([]string{"", "  "})
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestDirectoryScanner_WalksDirectories(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "billing")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crm.yaml"), []byte(customerYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "invoice.yml"), []byte(`
entities:
  - entity: invoice
    fields: [{name: total, kind: number}]
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	scanner, err := NewDirectoryScanner([]string{dir})
	require.NoError(t, err)

	descs, err := scanner.Descriptors(context.Background())
	require.NoError(t, err)

	var types []string
	for _, d := range descs {
		types = append(types, d.EntityType)
	}
	assert.ElementsMatch(t, []string{"customer", "address", "invoice"}, types)
}

func TestDirectoryScanner_MissingSource(t *testing.T) {
	scanner, err := NewDirectoryScanner([]string{filepath.Join(t.TempDir(), "nope")})
	require.NoError(t, err)

	_, err = scanner.Descriptors(context.Background())
	assert.Error(t, err)
}

func TestSnapshot_CachesUntilRefresh(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(file, []byte(customerYAML), 0o644))
	scanner, err := NewDirectoryScanner([]string{dir})
	require.NoError(t, err)
	snap := NewSnapshot(scanner)
	ctx := context.Background()

	first, err := snap.Descriptors(ctx)
	require.NoError(t, err)
	again, err := snap.Descriptors(ctx)
	require.NoError(t, err)
	assert.Same(t, first[0], again[0], "same instances until refreshed")

	require.NoError(t, os.WriteFile(file, []byte(`
entities:
  - entity: invoice
`), 0o644))
	refreshed, err := snap.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, refreshed, 1)
	assert.Equal(t, "invoice", refreshed[0].EntityType)

	require.NoError(t, os.WriteFile(file, []byte("entities: [{entity: ''}]"), 0o644))
	_, err = snap.Refresh(ctx)
	assert.Error(t, err)
	kept, err := snap.Descriptors(ctx)
	require.NoError(t, err)
	assert.Equal(t, "invoice", kept[0].EntityType, "failed refresh keeps the cache")
}
