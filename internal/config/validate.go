package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate reports every missing or invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, ok := drivers[strings.ToLower(c.Database.Driver)]; !ok {
		fail("database.driver", "unsupported driver %q, use mysql, postgres or sqlite", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		fail("database.dsn", "is required")
	}
	if c.Database.MaxOpenConns < 0 {
		fail("database.max_open_conns", "must not be negative")
	}

	switch {
	case c.Query.SQL == "" && c.Query.SQLFile == "":
		fail("query.sql", "one of query.sql and query.sql_file is required")
	case c.Query.SQL != "" && c.Query.SQLFile != "":
		fail("query.sql", "query.sql and query.sql_file are mutually exclusive")
	}
	if c.Query.Schema == "" {
		fail("query.schema", "is required")
	}
	if c.Query.Root == "" {
		fail("query.root", "is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		fail("logging.level", "unknown level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		fail("logging.format", "unknown format %q", c.Logging.Format)
	}

	return errors.Join(errs...)
}
