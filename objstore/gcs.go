package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures a Google Cloud Storage client.
type GCSConfig struct {
	Project               string `yaml:"project"`
	CredentialsFile       string `yaml:"credentialsFile"`
	Endpoint              string `yaml:"endpoint"`
	WithoutAuthentication bool   `yaml:"withoutAuthentication"`
}

// gcsBucketHandle abstracts a GCS bucket handle for testability.
type gcsBucketHandle interface {
	Object(name string) gcsObjectHandle
}

// gcsObjectHandle abstracts a GCS object handle.
type gcsObjectHandle interface {
	NewReader(ctx context.Context) (io.ReadCloser, error)
	NewWriter(ctx context.Context, attrs ObjectAttrs, kmsKeyName string) io.WriteCloser
	Delete(ctx context.Context) error
	Attrs(ctx context.Context) (*storage.ObjectAttrs, error)
}

// realBucketHandle wraps *storage.BucketHandle to satisfy gcsBucketHandle.
type realBucketHandle struct{ bh *storage.BucketHandle }

func (r *realBucketHandle) Object(name string) gcsObjectHandle {
	return &realObjectHandle{r.bh.Object(name)}
}

// realObjectHandle wraps *storage.ObjectHandle to satisfy gcsObjectHandle.
type realObjectHandle struct{ oh *storage.ObjectHandle }

func (r *realObjectHandle) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return r.oh.NewReader(ctx)
}

func (r *realObjectHandle) NewWriter(ctx context.Context, attrs ObjectAttrs, kmsKeyName string) io.WriteCloser {
	w := r.oh.NewWriter(ctx)
	w.ContentType = attrs.ContentType
	if kmsKeyName != "" {
		w.KMSKeyName = kmsKeyName
	}
	return w
}

func (r *realObjectHandle) Delete(ctx context.Context) error { return r.oh.Delete(ctx) }

func (r *realObjectHandle) Attrs(ctx context.Context) (*storage.ObjectAttrs, error) {
	return r.oh.Attrs(ctx)
}

// GCSClient provides bucket handles backed by Google Cloud Storage.
type GCSClient struct {
	client *storage.Client
	owned  bool
}

// NewGCSClient dials a new storage client from cfg. Close releases it.
func NewGCSClient(ctx context.Context, cfg GCSConfig) (*GCSClient, error) {
	opts := []option.ClientOption{}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.CredentialsFile))
	}
	if cfg.Project != "" {
		opts = append(opts, option.WithQuotaProject(cfg.Project))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.WithoutAuthentication {
		opts = append(opts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSClient{client: client, owned: true}, nil
}

// WrapGCSClient adapts an existing storage client. Close leaves it open.
func WrapGCSClient(client *storage.Client) *GCSClient {
	return &GCSClient{client: client}
}

// Bucket returns a handle to the named GCS bucket.
func (g *GCSClient) Bucket(name string, opts BucketOptions) Bucket {
	bh := g.client.Bucket(name)
	if opts.UserProject != "" {
		bh = bh.UserProject(opts.UserProject)
	}
	return newGCSBucket(name, &realBucketHandle{bh}, opts)
}

// Close closes the underlying client if it was created by NewGCSClient.
func (g *GCSClient) Close() error {
	if !g.owned || g.client == nil {
		return nil
	}
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("failed to close GCS client: %w", err)
	}
	return nil
}

type gcsBucket struct {
	name   string
	handle gcsBucketHandle
	opts   BucketOptions
}

func newGCSBucket(name string, handle gcsBucketHandle, opts BucketOptions) *gcsBucket {
	return &gcsBucket{name: name, handle: handle, opts: opts}
}

func (g *gcsBucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.handle.Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat object %q: %w", key, err)
	}
	return true, nil
}

func (g *gcsBucket) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.handle.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, notFound(g.name, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object %q: %w", key, err)
	}
	return r, nil
}

// Upload streams r into a new object generation. Cancelling the writer's
// context before Close discards the partial upload.
func (g *gcsBucket) Upload(ctx context.Context, key string, r io.Reader, attrs ObjectAttrs) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.handle.Object(key).NewWriter(ctx, attrs, g.opts.KMSKeyName)
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("failed to write object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close writer for object %q: %w", key, err)
	}
	return nil
}

func (g *gcsBucket) Delete(ctx context.Context, key string) error {
	err := g.handle.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return notFound(g.name, key)
	}
	if err != nil {
		return fmt.Errorf("failed to delete object %q: %w", key, err)
	}
	return nil
}
