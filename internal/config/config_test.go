package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
schema:
  sources: [./schema]
`))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "id", cfg.Schema.IDAttribute)
	assert.Equal(t, 32, cfg.Schema.MaxDepth)
	assert.Equal(t, "entity", cfg.Redis.KeyPrefix)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Auth.Enabled())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_RequiresSchemaSources(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  port: 9000
`))
	assert.ErrorIs(t, err, ErrNoSchemaSources)

	_, err = Load(writeConfig(t, `
schema:
  sources: ["", " "]
`))
	assert.ErrorIs(t, err, ErrNoSchemaSources)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENTITY_SERVER_PORT", "9191")
	t.Setenv("ENTITY_DATABASE_DRIVER", "sqlite")

	cfg, err := Load(writeConfig(t, `
schema:
  sources: [./schema]
`))
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.True(t, cfg.Database.IsSQLite())
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	_, err := Load(writeConfig(t, `
database:
  driver: oracle
schema:
  sources: [./schema]
`))
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", User: "u", Password: "p", Host: "db", Port: 5433, Name: "crm"}
	assert.Equal(t, "postgres://u:p@db:5433/crm?sslmode=disable", pg.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Path: "/var/data", Name: "crm"}
	assert.Equal(t, "/var/data/crm.db", lite.DSN())

	mem := DatabaseConfig{Driver: "sqlite", Name: ":memory:"}
	assert.Equal(t, ":memory:", mem.DSN())
}
