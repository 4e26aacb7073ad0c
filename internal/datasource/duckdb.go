package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// DuckDBParams holds DuckDB-specific settings.
type DuckDBParams struct {
	// Extensions to install and load (e.g., "httpfs", "json").
	Extensions []string `mapstructure:"extensions"`

	// Settings applied with SET (e.g., memory_limit, threads).
	Settings map[string]string `mapstructure:"settings"`
}

// DuckDB is the dialect of the duckdb driver.
var DuckDB = Dialect{Name: "duckdb", NumberType: "DOUBLE", TextType: "VARCHAR"}

func init() {
	Register("duckdb", DuckDB, openDuckDB)
}

// openDuckDB opens a DuckDB database. An empty path opens an in-memory
// database.
func openDuckDB(ctx context.Context, cfg Config, logger *slog.Logger) (*sql.DB, error) {
	var params DuckDBParams
	if err := decodeParams(cfg.Params, &params); err != nil {
		return nil, err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	logger.Debug("opening duckdb", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}
	if err := applyDuckDBParams(ctx, db, params); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func applyDuckDBParams(ctx context.Context, db *sql.DB, p DuckDBParams) error {
	for _, ext := range p.Extensions {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(p.Settings)) {
		v := strings.ReplaceAll(p.Settings[k], "'", "''")
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", k, v)); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", k, err)
		}
	}
	return nil
}
