package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeObjectStore is an in-memory natsObjectStore.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	metas   map[string]jetstream.ObjectMeta
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte), metas: make(map[string]jetstream.ObjectMeta)}
}

func (s *fakeObjectStore) Put(_ context.Context, meta jetstream.ObjectMeta, r io.Reader) (*jetstream.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[meta.Name] = data
	s.metas[meta.Name] = meta
	return &jetstream.ObjectInfo{ObjectMeta: meta, Size: uint64(len(data))}, nil
}

func (s *fakeObjectStore) Get(_ context.Context, name string, _ ...jetstream.GetObjectOpt) (jetstream.ObjectResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[name]
	if !ok {
		return nil, jetstream.ErrObjectNotFound
	}
	return &fakeObjectResult{Reader: bytes.NewReader(data), info: &jetstream.ObjectInfo{ObjectMeta: s.metas[name]}}, nil
}

func (s *fakeObjectStore) GetInfo(_ context.Context, name string, _ ...jetstream.GetObjectInfoOpt) (*jetstream.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; !ok {
		return nil, jetstream.ErrObjectNotFound
	}
	return &jetstream.ObjectInfo{ObjectMeta: s.metas[name]}, nil
}

func (s *fakeObjectStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; !ok {
		return jetstream.ErrObjectNotFound
	}
	delete(s.objects, name)
	return nil
}

type fakeObjectResult struct {
	*bytes.Reader
	info *jetstream.ObjectInfo
}

func (r *fakeObjectResult) Close() error                        { return nil }
func (r *fakeObjectResult) Info() (*jetstream.ObjectInfo, error) { return r.info, nil }
func (r *fakeObjectResult) Error() error                        { return nil }

// fakeJetStream hands out object stores by bucket name.
type fakeJetStream struct {
	mu      sync.Mutex
	buckets map[string]*fakeObjectStore
	openErr error
}

func newFakeJetStream(buckets ...string) *fakeJetStream {
	js := &fakeJetStream{buckets: make(map[string]*fakeObjectStore)}
	for _, b := range buckets {
		js.buckets[b] = newFakeObjectStore()
	}
	return js
}

func (js *fakeJetStream) open(_ context.Context, bucket string, create bool) (natsObjectStore, error) {
	js.mu.Lock()
	defer js.mu.Unlock()
	if js.openErr != nil {
		return nil, js.openErr
	}
	s, ok := js.buckets[bucket]
	if !ok {
		if !create {
			return nil, jetstream.ErrBucketNotFound
		}
		s = newFakeObjectStore()
		js.buckets[bucket] = s
	}
	return s, nil
}

func TestBucketContract_NATS(t *testing.T) {
	js := newFakeJetStream("sessions", "other")
	testBucketContract(t, &NATSClient{open: js.open})
}

func TestNATS_ContentTypeHeader(t *testing.T) {
	js := newFakeJetStream("sessions")
	b := (&NATSClient{open: js.open}).Bucket("sessions", BucketOptions{})
	require.NoError(t, b.Upload(context.Background(), "k", strings.NewReader("zip"), ObjectAttrs{ContentType: "application/zip"}))

	meta := js.buckets["sessions"].metas["k"]
	assert.Equal(t, "application/zip", meta.Headers.Get("Content-Type"))
}

func TestNATS_MissingBucket(t *testing.T) {
	ctx := context.Background()

	js := newFakeJetStream()
	b := (&NATSClient{open: js.open}).Bucket("sessions", BucketOptions{})
	_, err := b.Exists(ctx, "k")
	assert.ErrorIs(t, err, jetstream.ErrBucketNotFound)
	assert.ErrorIs(t, b.Delete(ctx, "k"), ErrObjectNotFound)
	assert.Error(t, b.Upload(ctx, "k", strings.NewReader("x"), ObjectAttrs{}))

	created := (&NATSClient{open: js.open, createBuckets: true}).Bucket("sessions", BucketOptions{})
	require.NoError(t, created.Upload(ctx, "k", strings.NewReader("x"), ObjectAttrs{}))
	assert.Equal(t, "x", readObject(t, b, "k"))
}

func TestNATS_OpenFailure(t *testing.T) {
	js := newFakeJetStream("sessions")
	js.openErr = errors.New("nats: timeout")
	b := (&NATSClient{open: js.open}).Bucket("sessions", BucketOptions{})
	ctx := context.Background()

	_, err := b.Exists(ctx, "k")
	assert.ErrorIs(t, err, js.openErr)
	assert.NotErrorIs(t, b.Delete(ctx, "k"), ErrObjectNotFound)
}
