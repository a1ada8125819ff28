package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graph-persistence/internal/api"
	"graph-persistence/internal/config"
	"graph-persistence/internal/metadata"
	"graph-persistence/internal/store"
)

type fakeReloader struct {
	types []string
	err   error
	calls int
}

func (f *fakeReloader) Reload(context.Context) ([]string, error) {
	f.calls++
	return f.types, f.err
}

func catalogStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Bootstrap(ctx))

	descs, err := metadata.ParseDescriptors([]byte(`
entities:
  - entity: customer
    table: customers
    fields:
      - {name: name, kind: string}
  - entity: cart
    storage: redis
`))
	require.NoError(t, err)
	for _, d := range descs {
		require.NoError(t, s.RecordEntity(ctx, d))
	}
	return s
}

func request(t *testing.T, app *fiber.App, method, path string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, nil))
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return resp.StatusCode, body
}

func newAdminApp(t *testing.T, reloader Reloader) *fiber.App {
	app := api.NewApp(zap.NewNop(), nil)
	RegisterAdminRoutes(app, NewHandler(catalogStore(t), reloader, zap.NewNop()))
	return app
}

func TestListEntities(t *testing.T) {
	app := newAdminApp(t, &fakeReloader{})

	status, body := request(t, app, "GET", "/_admin/entities")
	require.Equal(t, 200, status)
	data := body["data"].([]any)
	require.Len(t, data, 2)
	cart := data[0].(map[string]any)
	assert.Equal(t, "cart", cart["name"])
	assert.Equal(t, "redis", cart["storage"])
}

func TestGetEntity(t *testing.T) {
	app := newAdminApp(t, &fakeReloader{})

	status, body := request(t, app, "GET", "/_admin/entities/customer")
	require.Equal(t, 200, status)
	entry := body["data"].(map[string]any)
	assert.Equal(t, "customers", entry["table"])
	def := entry["definition"].(map[string]any)
	assert.Equal(t, "sequence", def["id_strategy"])
	assert.Len(t, def["fields"], 2)

	status, body = request(t, app, "GET", "/_admin/entities/unicorn")
	assert.Equal(t, 404, status)
	assert.Equal(t, "UNKNOWN_ENTITY", body["error"].(map[string]any)["code"])
}

func TestReload(t *testing.T) {
	reloader := &fakeReloader{types: []string{"cart", "customer"}}
	app := newAdminApp(t, reloader)

	status, body := request(t, app, "POST", "/_admin/reload")
	require.Equal(t, 200, status)
	assert.Equal(t, []any{"cart", "customer"}, body["data"].(map[string]any)["entities"])
	assert.Equal(t, 1, reloader.calls)

	reloader.err = errors.New("entity invoice: no access handle registered")
	status, body = request(t, app, "POST", "/_admin/reload")
	assert.Equal(t, 409, status)
	assert.Equal(t, "RELOAD_FAILED", body["error"].(map[string]any)["code"])
}
