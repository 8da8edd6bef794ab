package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Database.MaxOpenConns)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Empty(t, cfg.Query.Args)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hydrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: postgres
  dsn: postgres://file
  max_open_conns: 2
query:
  sql: FROM users u
  schema: schema.yaml
  root: User
logging:
  level: warn
`), 0644))

	t.Setenv("HYDRATE_DATABASE_DSN", "postgres://env")
	t.Setenv("HYDRATE_LOGGING_LEVEL", "error")
	t.Setenv("HYDRATE_QUERY_ARGS", "1,2")

	cfg, err := Load([]string{"--config", path, "--logging.level", "debug", "--database.max_open_conns=8"})
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver, "file should override defaults")
	assert.Equal(t, "postgres://env", cfg.Database.DSN, "env should override file")
	assert.Equal(t, "debug", cfg.Logging.Level, "flags should override env")
	assert.Equal(t, 8, cfg.Database.MaxOpenConns, "flags should override file")
	assert.Equal(t, []string{"1", "2"}, cfg.Query.Args)
	assert.Equal(t, "User", cfg.Query.Root)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		file string
	}{
		{
			name: "unknown flag",
			args: []string{"--nope"},
		},
		{
			name: "missing config file",
			args: []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")},
		},
		{
			name: "unknown key in file",
			file: "database:\n  driver: mysql\n  pool: 3\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.args
			if tt.file != "" {
				path := filepath.Join(t.TempDir(), "hydrate.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.file), 0644))
				args = append(args, "--config", path)
			}
			_, err := Load(args)
			assert.Error(t, err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1},
			Query:    QueryConfig{SQL: "FROM users", Schema: "schema.yaml", Root: "User"},
			Logging:  LoggingConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name       string
		modify     func(*Config)
		wantFields []string
	}{
		{
			name:   "valid",
			modify: func(*Config) {},
		},
		{
			name:       "unknown driver",
			modify:     func(c *Config) { c.Database.Driver = "oracle" },
			wantFields: []string{"database.driver"},
		},
		{
			name: "missing everything",
			modify: func(c *Config) {
				c.Database.DSN = ""
				c.Query = QueryConfig{}
			},
			wantFields: []string{"database.dsn", "query.sql", "query.schema", "query.root"},
		},
		{
			name: "sql and sql file",
			modify: func(c *Config) {
				c.Query.SQLFile = "query.sql"
			},
			wantFields: []string{"query.sql"},
		},
		{
			name: "bad logging",
			modify: func(c *Config) {
				c.Logging = LoggingConfig{Level: "loud", Format: "xml"}
			},
			wantFields: []string{"logging.level", "logging.format"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, field := range tt.wantFields {
				assert.Contains(t, err.Error(), field+":")
			}
			var ve ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}
}

func TestDatabaseConfig_Dialect(t *testing.T) {
	tests := []struct {
		driver     string
		sqlDriver  string
		gormDriver string
	}{
		{"mysql", "mysql", "mysql"},
		{"postgres", "postgres", "postgres"},
		{"SQLite", "sqlite", "sqlite3"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			c := DatabaseConfig{Driver: tt.driver}
			assert.Equal(t, tt.sqlDriver, c.SQLDriver())
			assert.Equal(t, tt.gormDriver, c.Dialect())
		})
	}
}

func TestQueryConfig_Statement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query.sql")
	require.NoError(t, os.WriteFile(path, []byte("FROM users u"), 0644))

	stmt, err := QueryConfig{SQLFile: path}.Statement()
	require.NoError(t, err)
	assert.Equal(t, "FROM users u", stmt)

	stmt, err = QueryConfig{SQL: "FROM orders"}.Statement()
	require.NoError(t, err)
	assert.Equal(t, "FROM orders", stmt)

	_, err = QueryConfig{SQLFile: filepath.Join(t.TempDir(), "missing.sql")}.Statement()
	assert.Error(t, err)
}
