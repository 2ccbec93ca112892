package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryClient keeps objects in process memory. It is safe for concurrent use.
type MemoryClient struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memoryObject // bucket -> key -> object
}

type memoryObject struct {
	data  []byte
	attrs ObjectAttrs
}

// NewMemoryClient creates an empty in-memory client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{buckets: make(map[string]map[string]memoryObject)}
}

// Bucket returns a handle to the named in-memory bucket.
func (c *MemoryClient) Bucket(name string, _ BucketOptions) Bucket {
	return &memoryBucket{client: c, name: name}
}

// Close is a no-op.
func (c *MemoryClient) Close() error { return nil }

// Attrs returns the stored attributes of an object, for inspection in tests.
func (c *MemoryClient) Attrs(bucket, key string) (ObjectAttrs, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.buckets[bucket][key]
	return obj.attrs, ok
}

// Len returns the number of objects held in a bucket.
func (c *MemoryClient) Len(bucket string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.buckets[bucket])
}

type memoryBucket struct {
	client *MemoryClient
	name   string
}

func (b *memoryBucket) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.client.mu.RLock()
	defer b.client.mu.RUnlock()
	_, ok := b.client.buckets[b.name][key]
	return ok, nil
}

func (b *memoryBucket) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.client.mu.RLock()
	obj, ok := b.client.buckets[b.name][key]
	b.client.mu.RUnlock()
	if !ok {
		return nil, notFound(b.name, key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (b *memoryBucket) Upload(ctx context.Context, key string, r io.Reader, attrs ObjectAttrs) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("failed to read upload body for %q: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.client.mu.Lock()
	defer b.client.mu.Unlock()
	if b.client.buckets[b.name] == nil {
		b.client.buckets[b.name] = make(map[string]memoryObject)
	}
	b.client.buckets[b.name][key] = memoryObject{data: buf.Bytes(), attrs: attrs}
	return nil
}

func (b *memoryBucket) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.client.mu.Lock()
	defer b.client.mu.Unlock()

	objs := b.client.buckets[b.name]
	if _, ok := objs[key]; !ok {
		return notFound(b.name, key)
	}
	delete(objs, key)
	if len(objs) == 0 {
		delete(b.client.buckets, b.name)
	}
	return nil
}
