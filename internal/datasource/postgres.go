package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresParams holds PostgreSQL-specific settings.
type PostgresParams struct {
	SSLMode         string `mapstructure:"sslmode"`
	SearchPath      string `mapstructure:"search_path"`
	ApplicationName string `mapstructure:"application_name"`
}

// Postgres is the dialect of the postgres driver.
var Postgres = Dialect{Name: "postgres", NumberType: "DOUBLE PRECISION", TextType: "TEXT", Numbered: true}

func init() {
	Register("postgres", Postgres, openPostgres)
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*sql.DB, error) {
	var params PostgresParams
	if err := decodeParams(cfg.Params, &params); err != nil {
		return nil, err
	}

	connCfg, err := pgx.ParseConfig(postgresURL(cfg, params))
	if err != nil {
		return nil, fmt.Errorf("invalid postgres configuration: %w", err)
	}
	if params.SearchPath != "" {
		connCfg.RuntimeParams["search_path"] = params.SearchPath
	}

	logger.Debug("connecting to postgres", slog.String("host", connCfg.Host), slog.String("database", connCfg.Database))

	db := stdlib.OpenDB(*connCfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

// postgresURL builds a connection URL, defaulting to localhost:5432 with
// TLS disabled.
func postgresURL(cfg Config, p PostgresParams) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   host + ":" + strconv.Itoa(port),
		Path:   "/" + cfg.Database,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	q := url.Values{}
	q.Set("sslmode", sslmode)
	if p.ApplicationName != "" {
		q.Set("application_name", p.ApplicationName)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
