package output

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultResultsTable is used when no table is configured.
const DefaultResultsTable = "crawl_results"

// insertChunk caps rows per INSERT so the statement stays well below the
// protocol's parameter limit.
const insertChunk = 1000

const columnsPerRow = 5

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool used for result rows.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresStore writes one row per visited host:
// (run_id, position, host, rtt_ms, finished_at).
type PostgresStore struct {
	pool  execCloser
	table string
}

// NewPostgresStore connects to Postgres using cfg.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("output.postgres_dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool.
func NewPostgresStoreWithPool(pool execCloser, table string) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultResultsTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Name implements Writer.
func (s *PostgresStore) Name() string { return "postgres" }

// Write implements Writer. Rows are inserted in chunks; position is the
// zero-based index in the result log.
func (s *PostgresStore) Write(ctx context.Context, report Report) error {
	if s == nil || s.pool == nil {
		return errors.New("postgres store is not configured")
	}
	for start := 0; start < len(report.Results); start += insertChunk {
		end := min(start+insertChunk, len(report.Results))
		query, args := s.insertStatement(report, start, end)
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert results %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

func (s *PostgresStore) insertStatement(report Report, start, end int) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (run_id, position, host, rtt_ms, finished_at) VALUES ", s.table)
	args := make([]any, 0, (end-start)*columnsPerRow)
	runID := report.RunID.String()
	for i := start; i < end; i++ {
		if i > start {
			sb.WriteString(",")
		}
		n := len(args)
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5)
		rec := report.Results[i]
		args = append(args, runID, i, rec.Host, rec.RTT.Milliseconds(), report.FinishedAt)
	}
	return sb.String(), args
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
