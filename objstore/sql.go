package objstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultSQLTable = "session_objects"

// SQLConfig configures the database-backed drivers. Objects are stored as
// rows keyed by (bucket, object_key) in Table.
type SQLConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type sqlDialect struct {
	driverName string
	blobType   string
	timeType   string
	// rebind rewrites ? placeholders for the database.
	rebind func(string) string
}

var (
	sqliteDialect = sqlDialect{
		driverName: "sqlite",
		blobType:   "BLOB",
		timeType:   "TIMESTAMP",
		rebind:     func(q string) string { return q },
	}
	postgresDialect = sqlDialect{
		driverName: "pgx",
		blobType:   "BYTEA",
		timeType:   "TIMESTAMPTZ",
		rebind:     dollarPlaceholders,
	}
)

func dollarPlaceholders(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type sqlQueries struct {
	exists, get, upsert, remove string
}

// SQLClient stores objects in a relational database.
type SQLClient struct {
	db *sql.DB
	q  sqlQueries
}

// NewSQLiteClient opens (creating if needed) an SQLite database file and
// prepares the objects table.
func NewSQLiteClient(ctx context.Context, cfg SQLConfig) (*SQLClient, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sqlite: dsn is required")
	}
	dsn := cfg.DSN
	if dsn != ":memory:" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open(sqliteDialect.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writes and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return newSQLClient(ctx, db, sqliteDialect, cfg.Table)
}

// NewPostgresClient connects to PostgreSQL through pgx and prepares the
// objects table.
func NewPostgresClient(ctx context.Context, cfg SQLConfig) (*SQLClient, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	db, err := sql.Open(postgresDialect.driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newSQLClient(ctx, db, postgresDialect, cfg.Table)
}

func newSQLClient(ctx context.Context, db *sql.DB, d sqlDialect, table string) (*SQLClient, error) {
	if table == "" {
		table = defaultSQLTable
	}
	if !validTableName(table) {
		db.Close()
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    bucket       TEXT NOT NULL,
    object_key   TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT '',
    data         %s NOT NULL,
    updated_at   %s NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (bucket, object_key)
)`, table, d.blobType, d.timeType)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLClient{
		db: db,
		q: sqlQueries{
			exists: d.rebind(`SELECT 1 FROM ` + table + ` WHERE bucket = ? AND object_key = ?`),
			get:    d.rebind(`SELECT data FROM ` + table + ` WHERE bucket = ? AND object_key = ?`),
			upsert: d.rebind(`INSERT INTO ` + table + ` (bucket, object_key, content_type, data, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (bucket, object_key) DO UPDATE SET
			content_type = excluded.content_type,
			data = excluded.data,
			updated_at = excluded.updated_at`),
			remove: d.rebind(`DELETE FROM ` + table + ` WHERE bucket = ? AND object_key = ?`),
		},
	}, nil
}

func validTableName(name string) bool {
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return name != ""
}

// Bucket returns a handle scoped to rows of the named bucket.
func (c *SQLClient) Bucket(name string, _ BucketOptions) Bucket {
	return &sqlBucket{db: c.db, q: c.q, name: name}
}

// Close closes the database.
func (c *SQLClient) Close() error {
	return c.db.Close()
}

type sqlBucket struct {
	db   *sql.DB
	q    sqlQueries
	name string
}

func (b *sqlBucket) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx, b.q.exists, b.name, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query object %q: %w", key, err)
	}
	return true, nil
}

func (b *sqlBucket) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, b.q.get, b.name, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(b.name, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Upload reads the whole body before writing the row, so a failed read
// leaves any previous object untouched.
func (b *sqlBucket) Upload(ctx context.Context, key string, r io.Reader, attrs ObjectAttrs) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read upload body for %q: %w", key, err)
	}
	if data == nil {
		data = []byte{}
	}
	if _, err := b.db.ExecContext(ctx, b.q.upsert, b.name, key, attrs.ContentType, data); err != nil {
		return fmt.Errorf("write object %q: %w", key, err)
	}
	return nil
}

func (b *sqlBucket) Delete(ctx context.Context, key string) error {
	res, err := b.db.ExecContext(ctx, b.q.remove, b.name, key)
	if err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	if n == 0 {
		return notFound(b.name, key)
	}
	return nil
}
