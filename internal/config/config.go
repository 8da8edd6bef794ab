// Package config loads the hydrate command's configuration from flags, env vars and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables, e.g. HYDRATE_DATABASE_DSN.
const EnvPrefix = "HYDRATE"

// Config holds the application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Query    QueryConfig    `mapstructure:"query"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres, sqlite
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// QueryConfig describes the query to hydrate and the schema to hydrate it with.
type QueryConfig struct {
	SQL     string   `mapstructure:"sql"`
	SQLFile string   `mapstructure:"sql_file"`
	Args    []string `mapstructure:"args"`
	Schema  string   `mapstructure:"schema"` // path to the YAML entity schema
	Root    string   `mapstructure:"root"`   // root entity name
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// driver name for database/sql and dialect name for gorm
var drivers = map[string][2]string{
	"mysql":    {"mysql", "mysql"},
	"postgres": {"postgres", "postgres"},
	"sqlite":   {"sqlite", "sqlite3"},
}

// SQLDriver returns the database/sql driver name for the configured driver.
func (c DatabaseConfig) SQLDriver() string {
	return drivers[strings.ToLower(c.Driver)][0]
}

// Dialect returns the gorm dialect name for the configured driver.
func (c DatabaseConfig) Dialect() string {
	return drivers[strings.ToLower(c.Driver)][1]
}

// Statement returns the configured SQL, reading it from SQLFile when SQL is empty.
func (c QueryConfig) Statement() (string, error) {
	if c.SQL != "" {
		return c.SQL, nil
	}
	data, err := os.ReadFile(c.SQLFile)
	if err != nil {
		return "", fmt.Errorf("failed to read query file: %w", err)
	}
	return string(data), nil
}

// ArgValues returns the query args as values for database/sql.
func (c QueryConfig) ArgValues() []interface{} {
	ret := make([]interface{}, 0, len(c.Args))
	for _, a := range c.Args {
		ret = append(ret, a)
	}
	return ret
}

// Load loads configuration with the following precedence:
// 1. Command line flags
// 2. Environment variables
// 3. Config file (--config, or hydrate.yaml in the working directory)
// 4. Default values
func Load(args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfgPath, _ := flags.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("hydrate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Env vars: HYDRATE_DATABASE_MAX_OPEN_CONNS
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlags(v, flags)

	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(mapstructure.StringToSliceHookFunc(",")),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)

	v.SetDefault("query.sql", "")
	v.SetDefault("query.sql_file", "")
	v.SetDefault("query.args", []string{})
	v.SetDefault("query.schema", "")
	v.SetDefault("query.root", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// newFlagSet defines all command line flags using canonical snake_case keys.
func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("hydrate", pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML config file")

	fs.String("database.driver", "", "Database driver (mysql, postgres, sqlite)")
	fs.String("database.dsn", "", "Database DSN")
	fs.Int("database.max_open_conns", 0, "Maximum open database connections")

	fs.String("query.sql", "", "Query to hydrate, starting with SELECT or FROM")
	fs.String("query.sql_file", "", "Path to a file containing the query")
	fs.StringSlice("query.args", nil, "Query args (comma-separated or repeated)")
	fs.String("query.schema", "", "Path to the YAML entity schema")
	fs.String("query.root", "", "Name of the root entity in the schema")

	fs.String("logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("logging.format", "", "Log format (json, text)")
	return fs
}

// bindChangedFlags copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		switch f.Value.Type() {
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := fs.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}
