package objstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readObject(t *testing.T, b Bucket, key string) string {
	t.Helper()
	rc, err := b.NewReader(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

// testBucketContract exercises the behaviour every driver must share.
func testBucketContract(t *testing.T, c Client) {
	t.Helper()
	ctx := context.Background()
	b := c.Bucket("sessions", BucketOptions{})
	const key = "prefix/s1/session.zip"

	ok, err := b.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "absent object")

	_, err = b.NewReader(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, b.Upload(ctx, key, strings.NewReader("first"), ObjectAttrs{ContentType: "application/zip"}))
	ok, err = b.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "first", readObject(t, b, key))

	require.NoError(t, b.Upload(ctx, key, strings.NewReader("second"), ObjectAttrs{ContentType: "application/zip"}))
	assert.Equal(t, "second", readObject(t, b, key), "upload replaces the object")

	cause := errors.New("read failed")
	err = b.Upload(ctx, key, &failingReader{data: []byte("par"), err: cause}, ObjectAttrs{})
	require.ErrorIs(t, err, cause)
	assert.Equal(t, "second", readObject(t, b, key), "failed upload leaves the previous object")

	require.NoError(t, b.Upload(ctx, "empty", strings.NewReader(""), ObjectAttrs{}))
	assert.Equal(t, "", readObject(t, b, "empty"))

	ok, err = c.Bucket("other", BucketOptions{}).Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "buckets are isolated")

	require.NoError(t, b.Delete(ctx, key))
	ok, err = b.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "deleted object")

	if err := b.Delete(ctx, key); err != nil {
		assert.ErrorIs(t, err, ErrObjectNotFound, "deleting an absent object")
	}
}

func TestBucketContract_Memory(t *testing.T) {
	testBucketContract(t, NewMemoryClient())
}

func TestBucketContract_File(t *testing.T) {
	c, err := NewFileClient(t.TempDir())
	require.NoError(t, err)
	testBucketContract(t, c)
}
