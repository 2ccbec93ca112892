package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGCSBucket is an in-memory gcsBucketHandle.
type fakeGCSBucket struct {
	mu        sync.Mutex
	objects   map[string][]byte
	attrs     map[string]ObjectAttrs
	kms       map[string]string
	attrsErr  error
	deleteErr error
}

func newFakeGCSBucket() *fakeGCSBucket {
	return &fakeGCSBucket{
		objects: make(map[string][]byte),
		attrs:   make(map[string]ObjectAttrs),
		kms:     make(map[string]string),
	}
}

func (f *fakeGCSBucket) Object(name string) gcsObjectHandle {
	return &fakeGCSObject{bucket: f, name: name}
}

type fakeGCSObject struct {
	bucket *fakeGCSBucket
	name   string
}

func (o *fakeGCSObject) NewReader(context.Context) (io.ReadCloser, error) {
	o.bucket.mu.Lock()
	defer o.bucket.mu.Unlock()
	data, ok := o.bucket.objects[o.name]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *fakeGCSObject) NewWriter(ctx context.Context, attrs ObjectAttrs, kmsKeyName string) io.WriteCloser {
	return &fakeGCSWriter{ctx: ctx, obj: o, attrs: attrs, kms: kmsKeyName}
}

func (o *fakeGCSObject) Delete(context.Context) error {
	o.bucket.mu.Lock()
	defer o.bucket.mu.Unlock()
	if o.bucket.deleteErr != nil {
		return o.bucket.deleteErr
	}
	if _, ok := o.bucket.objects[o.name]; !ok {
		return storage.ErrObjectNotExist
	}
	delete(o.bucket.objects, o.name)
	return nil
}

func (o *fakeGCSObject) Attrs(context.Context) (*storage.ObjectAttrs, error) {
	o.bucket.mu.Lock()
	defer o.bucket.mu.Unlock()
	if o.bucket.attrsErr != nil {
		return nil, o.bucket.attrsErr
	}
	data, ok := o.bucket.objects[o.name]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return &storage.ObjectAttrs{Name: o.name, Size: int64(len(data))}, nil
}

// fakeGCSWriter commits on Close unless its context was cancelled, like the
// real storage.Writer.
type fakeGCSWriter struct {
	ctx   context.Context
	obj   *fakeGCSObject
	attrs ObjectAttrs
	kms   string
	buf   bytes.Buffer
}

func (w *fakeGCSWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *fakeGCSWriter) Close() error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	b := w.obj.bucket
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[w.obj.name] = w.buf.Bytes()
	b.attrs[w.obj.name] = w.attrs
	b.kms[w.obj.name] = w.kms
	return nil
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestGCSBucket_UploadAndRead(t *testing.T) {
	fake := newFakeGCSBucket()
	b := newGCSBucket("sessions", fake, BucketOptions{KMSKeyName: "projects/p/keys/k"})
	ctx := context.Background()

	err := b.Upload(ctx, "a/session.zip", strings.NewReader("archive"), ObjectAttrs{ContentType: "application/zip"})
	require.NoError(t, err)

	assert.Equal(t, "application/zip", fake.attrs["a/session.zip"].ContentType)
	assert.Equal(t, "projects/p/keys/k", fake.kms["a/session.zip"])

	ok, err := b.Exists(ctx, "a/session.zip")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := b.NewReader(ctx, "a/session.zip")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "archive", string(got))
}

func TestGCSBucket_UploadAbortsOnReadError(t *testing.T) {
	fake := newFakeGCSBucket()
	b := newGCSBucket("sessions", fake, BucketOptions{})

	cause := errors.New("disk read failed")
	err := b.Upload(context.Background(), "a/session.zip", &failingReader{data: []byte("part"), err: cause}, ObjectAttrs{})
	require.ErrorIs(t, err, cause)

	_, committed := fake.objects["a/session.zip"]
	assert.False(t, committed, "partial upload must not be committed")
}

func TestGCSBucket_NotFound(t *testing.T) {
	b := newGCSBucket("sessions", newFakeGCSBucket(), BucketOptions{})
	ctx := context.Background()

	ok, err := b.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = b.NewReader(ctx, "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	err = b.Delete(ctx, "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestGCSBucket_BackendErrors(t *testing.T) {
	fake := newFakeGCSBucket()
	fake.attrsErr = errors.New("403 forbidden")
	fake.deleteErr = errors.New("503 unavailable")
	b := newGCSBucket("sessions", fake, BucketOptions{})
	ctx := context.Background()

	_, err := b.Exists(ctx, "k")
	assert.ErrorIs(t, err, fake.attrsErr)
	assert.NotErrorIs(t, err, ErrObjectNotFound)

	err = b.Delete(ctx, "k")
	assert.ErrorIs(t, err, fake.deleteErr)
	assert.NotErrorIs(t, err, ErrObjectNotFound)
}

func TestGCSClient_CloseWrapped(t *testing.T) {
	// A wrapped client belongs to the caller and is left open.
	c := WrapGCSClient(nil)
	assert.NoError(t, c.Close())
}
