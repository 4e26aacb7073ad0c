package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// SQLiteParams holds SQLite-specific settings.
type SQLiteParams struct {
	// Pragmas applied to every connection (e.g., journal_mode: wal).
	Pragmas map[string]string `mapstructure:"pragmas"`
}

// SQLite is the dialect of the sqlite driver.
var SQLite = Dialect{Name: "sqlite", NumberType: "REAL", TextType: "TEXT"}

func init() {
	Register("sqlite", SQLite, openSQLite)
}

func openSQLite(ctx context.Context, cfg Config, logger *slog.Logger) (*sql.DB, error) {
	var params SQLiteParams
	if err := decodeParams(cfg.Params, &params); err != nil {
		return nil, err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	q := url.Values{}
	for _, k := range slices.Sorted(maps.Keys(params.Pragmas)) {
		q.Add("_pragma", fmt.Sprintf("%s(%s)", k, params.Pragmas[k]))
	}
	dsn := "file:" + path
	if len(q) > 0 {
		dsn += "?" + q.Encode()
	}
	logger.Debug("opening sqlite", slog.String("path", path))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return db, nil
}
