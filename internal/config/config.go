package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ErrNoSchemaSources is returned when no descriptor source location is
// configured.
var ErrNoSchemaSources = errors.New("schema.sources must list at least one descriptor location")

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for the SQLite database file
}

// DSN returns the driver-specific data source name. A SQLite database named
// ":memory:" stays in memory.
func (d DatabaseConfig) DSN() string {
	if d.IsSQLite() {
		if d.Name == ":memory:" {
			return d.Name
		}
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// RedisConfig configures the Redis access handle. An empty Addr disables it.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type SchemaConfig struct {
	Sources     []string `mapstructure:"sources"`
	IDAttribute string   `mapstructure:"id_attribute"`
	MaxDepth    int      `mapstructure:"max_depth"`
	AutoMigrate bool     `mapstructure:"auto_migrate"`
}

type AuthConfig struct {
	JWTSecret  string `mapstructure:"jwt_secret"`
	APIKeyHash string `mapstructure:"api_key_hash"`
}

// Enabled reports whether any API credential is configured.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != "" || a.APIKeyHash != ""
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads app.yaml from path (or the working directory when path is
// empty) and applies ENTITY_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("app")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("../..")
	}

	setDefaults(v)

	v.SetEnvPrefix("entity")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("redis.key_prefix", "entity")
	v.SetDefault("schema.id_attribute", "id")
	v.SetDefault("schema.max_depth", 32)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func (c *Config) Validate() error {
	var sources []string
	for _, s := range c.Schema.Sources {
		if strings.TrimSpace(s) != "" {
			sources = append(sources, s)
		}
	}
	if len(sources) == 0 {
		return ErrNoSchemaSources
	}
	c.Schema.Sources = sources
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Schema.MaxDepth <= 0 {
		return fmt.Errorf("schema.max_depth must be positive, got %d", c.Schema.MaxDepth)
	}
	return nil
}
