package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSConfig configures the NATS JetStream object store driver. Buckets map
// to JetStream object store buckets.
type NATSConfig struct {
	URL             string `yaml:"url"`
	CredentialsFile string `yaml:"credentialsFile"`
	Token           string `yaml:"token"`
	// CreateBuckets creates a missing object store bucket on first upload.
	CreateBuckets bool `yaml:"createBuckets"`
}

// natsObjectStore is the subset of jetstream.ObjectStore the driver uses.
type natsObjectStore interface {
	Put(ctx context.Context, meta jetstream.ObjectMeta, r io.Reader) (*jetstream.ObjectInfo, error)
	Get(ctx context.Context, name string, opts ...jetstream.GetObjectOpt) (jetstream.ObjectResult, error)
	GetInfo(ctx context.Context, name string, opts ...jetstream.GetObjectInfoOpt) (*jetstream.ObjectInfo, error)
	Delete(ctx context.Context, name string) error
}

// natsStoreOpener looks up an object store bucket, creating it when create
// is true and the bucket is missing.
type natsStoreOpener func(ctx context.Context, bucket string, create bool) (natsObjectStore, error)

// NATSClient provides bucket handles backed by JetStream object stores.
type NATSClient struct {
	conn          *nats.Conn
	open          natsStoreOpener
	createBuckets bool
}

// NewNATSClient connects to NATS and enables JetStream.
func NewNATSClient(cfg NATSConfig) (*NATSClient, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	opts := []nats.Option{nats.Name("sessionarchive")}
	if cfg.CredentialsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredentialsFile))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats: connect to %s: %w", url, err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("nats: enable jetstream: %w", err)
	}
	return &NATSClient{conn: conn, open: jetStreamOpener(js), createBuckets: cfg.CreateBuckets}, nil
}

func jetStreamOpener(js jetstream.JetStream) natsStoreOpener {
	return func(ctx context.Context, bucket string, create bool) (natsObjectStore, error) {
		store, err := js.ObjectStore(ctx, bucket)
		if errors.Is(err, jetstream.ErrBucketNotFound) && create {
			store, err = js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{Bucket: bucket})
		}
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// Bucket returns a handle to the named object store bucket. The bucket is
// looked up on each operation.
func (c *NATSClient) Bucket(name string, _ BucketOptions) Bucket {
	return &natsBucket{name: name, open: c.open, create: c.createBuckets}
}

// Close closes the NATS connection.
func (c *NATSClient) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

type natsBucket struct {
	name   string
	open   natsStoreOpener
	create bool
}

func (b *natsBucket) Exists(ctx context.Context, key string) (bool, error) {
	store, err := b.open(ctx, b.name, false)
	if err != nil {
		return false, fmt.Errorf("open object store %q: %w", b.name, err)
	}
	_, err = store.GetInfo(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get info for object %q: %w", key, err)
	}
	return true, nil
}

func (b *natsBucket) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	store, err := b.open(ctx, b.name, false)
	if err != nil {
		return nil, fmt.Errorf("open object store %q: %w", b.name, err)
	}
	res, err := store.Get(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, notFound(b.name, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}
	return res, nil
}

// Upload streams r in chunks. JetStream publishes the object's metadata only
// after the last chunk, and purges the chunks if the read fails.
func (b *natsBucket) Upload(ctx context.Context, key string, r io.Reader, attrs ObjectAttrs) error {
	store, err := b.open(ctx, b.name, b.create)
	if err != nil {
		return fmt.Errorf("open object store %q: %w", b.name, err)
	}
	meta := jetstream.ObjectMeta{Name: key}
	if attrs.ContentType != "" {
		meta.Headers = nats.Header{"Content-Type": []string{attrs.ContentType}}
	}
	if _, err := store.Put(ctx, meta, r); err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

func (b *natsBucket) Delete(ctx context.Context, key string) error {
	store, err := b.open(ctx, b.name, false)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		return notFound(b.name, key)
	}
	if err != nil {
		return fmt.Errorf("open object store %q: %w", b.name, err)
	}
	err = store.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return notFound(b.name, key)
	}
	if err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}
