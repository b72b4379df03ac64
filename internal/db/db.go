package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"ticketbridge/internal/config"
)

// DB is a database/sql handle that knows which placeholder style its driver expects.
type DB struct {
	*sql.DB
	dialect Dialect
}

func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Rebind rewrites a query written with '?' placeholders for the handle's dialect.
func (d *DB) Rebind(q string) string {
	return d.dialect.Rebind(q)
}

// Open connects using the configured driver and waits for the server to answer a
// ping, retrying with exponential backoff until ctx is done or a minute has passed.
func Open(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*DB, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := DSN(dialect, cfg)
	if err != nil {
		return nil, err
	}
	return OpenDSN(ctx, dialect, dsn, logger)
}

func OpenDSN(ctx context.Context, dialect Dialect, dsn string, logger *slog.Logger) (*DB, error) {
	sqlDB, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	ping := func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return struct{}{}, sqlDB.PingContext(pingCtx)
	}
	_, err = backoff.Retry(ctx, ping,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(time.Minute),
		backoff.WithNotify(func(err error, next time.Duration) {
			if logger != nil {
				logger.Warn("database not ready, retrying", "err", err, "retry_in", next)
			}
		}),
	)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return &DB{DB: sqlDB, dialect: dialect}, nil
}

// DSN builds the driver-specific connection string from discrete settings.
func DSN(dialect Dialect, cfg config.DBConfig) (string, error) {
	switch dialect {
	case Postgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Path:   "/" + cfg.Name,
		}
		q := u.Query()
		if cfg.SSLMode != "" {
			q.Set("sslmode", cfg.SSLMode)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	case MySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.DBName = cfg.Name
		mc.ParseTime = true
		mc.Loc = time.UTC
		return mc.FormatDSN(), nil
	case SQLite:
		return SQLiteDSN(cfg.Path), nil
	}
	return "", fmt.Errorf("unsupported dialect %q", dialect)
}

// SQLiteDSN stores times in a sortable layout so BETWEEN comparisons work on text columns.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_time_format=sqlite&_pragma=busy_timeout(5000)"
}
