package objstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteClient(t *testing.T) *SQLClient {
	t.Helper()
	c, err := NewSQLiteClient(context.Background(), SQLConfig{DSN: filepath.Join(t.TempDir(), "objects.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBucketContract_SQLite(t *testing.T) {
	testBucketContract(t, newTestSQLiteClient(t))
}

func TestBucketContract_Postgres(t *testing.T) {
	dsn := os.Getenv("SESSIONARCHIVE_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SESSIONARCHIVE_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	c, err := NewPostgresClient(context.Background(), SQLConfig{DSN: dsn, Table: "session_objects_test"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = c.db.ExecContext(context.Background(), `DROP TABLE IF EXISTS session_objects_test`)
		_ = c.Close()
	})
	testBucketContract(t, c)
}

func TestSQLite_StoresContentType(t *testing.T) {
	c := newTestSQLiteClient(t)
	ctx := context.Background()
	b := c.Bucket("sessions", BucketOptions{})
	require.NoError(t, b.Upload(ctx, "k", strings.NewReader("zip"), ObjectAttrs{ContentType: "application/zip"}))

	var ct string
	err := c.db.QueryRowContext(ctx,
		`SELECT content_type FROM session_objects WHERE bucket = ? AND object_key = ?`, "sessions", "k").Scan(&ct)
	require.NoError(t, err)
	assert.Equal(t, "application/zip", ct)
}

func TestSQLite_ReopenKeepsObjects(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "objects.db")
	ctx := context.Background()

	c, err := NewSQLiteClient(ctx, SQLConfig{DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, c.Bucket("b", BucketOptions{}).Upload(ctx, "k", strings.NewReader("kept"), ObjectAttrs{}))
	require.NoError(t, c.Close())

	c, err = NewSQLiteClient(ctx, SQLConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	assert.Equal(t, "kept", readObject(t, c.Bucket("b", BucketOptions{}), "k"))
}

func TestNewSQLClient_Validation(t *testing.T) {
	ctx := context.Background()
	_, err := NewSQLiteClient(ctx, SQLConfig{})
	assert.Error(t, err)

	_, err = NewPostgresClient(ctx, SQLConfig{})
	assert.Error(t, err)

	_, err = NewSQLiteClient(ctx, SQLConfig{DSN: ":memory:", Table: "objects; DROP TABLE x"})
	assert.Error(t, err)
}

func TestDollarPlaceholders(t *testing.T) {
	got := dollarPlaceholders(`DELETE FROM t WHERE bucket = ? AND object_key = ?`)
	assert.Equal(t, `DELETE FROM t WHERE bucket = $1 AND object_key = $2`, got)
}

func TestValidTableName(t *testing.T) {
	for name, want := range map[string]bool{
		"session_objects": true,
		"Objects2":        true,
		"_private":        true,
		"":                false,
		"2objects":        false,
		"a-b":             false,
		"a.b":             false,
	} {
		assert.Equal(t, want, validTableName(name), name)
	}
}
