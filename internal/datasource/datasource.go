// Package datasource moves frames between SQL databases and a session.
//
// Drivers register an Opener under a type name in their init functions.
// A Source wraps the opened *sql.DB and knows how to load a frame from a
// query and store a frame into a table.
package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"

	"github.com/leapstack-labs/leapmp/pkg/engine"
	"github.com/leapstack-labs/leapmp/pkg/frame"
)

// Config describes one configured data source.
type Config struct {
	// Type selects the driver: "duckdb", "postgres" or "sqlite".
	Type string `koanf:"type"`

	// Path is the database file for file-based drivers.
	Path string `koanf:"path"`

	// Network settings for server databases.
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Params holds driver-specific settings.
	Params map[string]any `koanf:"params"`
}

// Dialect captures the SQL differences between drivers.
type Dialect struct {
	Name       string
	NumberType string
	TextType   string
	// Numbered placeholders ($1) instead of ?.
	Numbered bool
}

// Placeholder returns the bind marker for the n-th parameter (1-based).
func (d Dialect) Placeholder(n int) string {
	if d.Numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Opener opens a database for a config.
type Opener func(ctx context.Context, cfg Config, logger *slog.Logger) (*sql.DB, error)

type driver struct {
	open    Opener
	dialect Dialect
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]driver)
)

// Register adds a driver to the registry.
func Register(name string, d Dialect, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = driver{open: open, dialect: d}
}

// Types returns all registered driver names (sorted).
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownTypeError is returned when an unregistered driver is requested.
type UnknownTypeError struct {
	Type      string
	Available []string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown datasource type %q\nAvailable types: %v\nHint: Check datasources in leapmp.yaml", e.Type, e.Available)
}

// Source is an open data source.
type Source struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// Open opens the data source described by cfg.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	registryMu.RLock()
	d, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownTypeError{Type: cfg.Type, Available: Types()}
	}

	db, err := d.open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Source{db: db, dialect: d.dialect, logger: logger}, nil
}

// NewWithDB wraps an already open database.
func NewWithDB(db *sql.DB, d Dialect, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Source{db: db, dialect: d, logger: logger}
}

// Dialect returns the source's dialect.
func (s *Source) Dialect() Dialect { return s.dialect }

// Close closes the database connection.
func (s *Source) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Debug("closing datasource", slog.String("type", s.dialect.Name))
	return s.db.Close()
}

// LoadFrame runs query and returns its result. The first indexCount
// columns become index columns.
func (s *Source) LoadFrame(ctx context.Context, query string, indexCount int) (*frame.Frame, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	f, err := frame.FromSQLRows(rows, indexCount)
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	s.logger.Debug("loaded frame", slog.Int("rows", f.NumRows()))
	return f, nil
}

// StoreMode selects what StoreFrame does with an existing table.
type StoreMode int

const (
	// Replace drops and recreates the table.
	Replace StoreMode = iota
	// Append inserts into the existing table.
	Append
)

// StoreFrame writes f into table inside one transaction.
func (s *Source) StoreFrame(ctx context.Context, table string, f *frame.Frame, mode StoreMode) error {
	cols := f.Columns()
	rows := f.Rows()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if mode == Replace {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteTable(table)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, s.createTable(table, cols, rows)); err != nil {
			return fmt.Errorf("failed to create %s: %w", table, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, s.insert(table, cols))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, row := range rows {
		args := make([]any, 0, len(cols))
		for _, v := range row.Index {
			args = append(args, v.Any())
		}
		for _, v := range row.Values {
			args = append(args, v.Any())
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.logger.Debug("stored frame", slog.String("table", table), slog.Int("rows", len(rows)))
	return nil
}

// createTable types each column as text when any of its cells is a
// string, otherwise as a number.
func (s *Source) createTable(table string, cols []string, rows []frame.Row) string {
	isText := make([]bool, len(cols))
	for _, row := range rows {
		cells := append(append([]engine.Value(nil), row.Index...), row.Values...)
		for i, v := range cells {
			if v.IsString() {
				isText[i] = true
			}
		}
	}

	defs := make([]string, len(cols))
	for i, c := range cols {
		typ := s.dialect.NumberType
		if isText[i] {
			typ = s.dialect.TextType
		}
		defs[i] = quoteIdent(c) + " " + typ
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteTable(table), strings.Join(defs, ", "))
}

func (s *Source) insert(table string, cols []string) string {
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteIdent(c)
		marks[i] = s.dialect.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteTable(table), strings.Join(names, ", "), strings.Join(marks, ", "))
}

// quoteTable quotes a possibly schema-qualified table name.
func quoteTable(name string) string {
	if schema, table, ok := strings.Cut(name, "."); ok && schema != "" && table != "" {
		return quoteIdent(schema) + "." + quoteIdent(table)
	}
	return quoteIdent(name)
}

// quoteIdent quotes a single identifier. Column names such as "x.ub"
// stay one identifier.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// decodeParams decodes cfg.Params into a driver-specific struct.
func decodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("invalid datasource params: %w", err)
	}
	return nil
}
