package objstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Transfer directions reported to an OperationRecorder.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// OperationRecorder receives per-operation measurements.
type OperationRecorder interface {
	ObserveOperation(driver, operation string, err error, elapsed time.Duration)
	AddBytes(driver, direction string, n int64)
}

// Instrumentation configures the Instrument decorator. Nil fields are
// replaced with no-op implementations.
type Instrumentation struct {
	Driver   string
	Logger   *slog.Logger
	Recorder OperationRecorder
	Tracer   trace.Tracer
}

// Instrument wraps c so every bucket operation is logged, measured and traced.
func Instrument(c Client, in Instrumentation) Client {
	if in.Logger == nil {
		in.Logger = slog.New(slog.DiscardHandler)
	}
	if in.Recorder == nil {
		in.Recorder = nopRecorder{}
	}
	if in.Tracer == nil {
		in.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return &instrumentedClient{Client: c, in: in}
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, error, time.Duration) {}
func (nopRecorder) AddBytes(string, string, int64)                         {}

type instrumentedClient struct {
	Client
	in Instrumentation
}

func (c *instrumentedClient) Bucket(name string, opts BucketOptions) Bucket {
	return &instrumentedBucket{next: c.Client.Bucket(name, opts), name: name, in: c.in}
}

type instrumentedBucket struct {
	next Bucket
	name string
	in   Instrumentation
}

// begin starts a span for op and returns a function that finishes it.
func (b *instrumentedBucket) begin(ctx context.Context, op, key string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := b.in.Tracer.Start(ctx, "objstore."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("objstore.driver", b.in.Driver),
			attribute.String("objstore.bucket", b.name),
			attribute.String("objstore.key", key),
		),
	)
	return ctx, func(err error) {
		elapsed := time.Since(start)
		b.in.Recorder.ObserveOperation(b.in.Driver, op, err, elapsed)

		attrs := []any{"driver", b.in.Driver, "bucket", b.name, "key", key, "elapsed", elapsed}
		switch {
		case err == nil:
			b.in.Logger.DebugContext(ctx, "object "+op, attrs...)
		case errors.Is(err, ErrObjectNotFound):
			b.in.Logger.DebugContext(ctx, "object "+op+": not found", attrs...)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			b.in.Logger.WarnContext(ctx, "object "+op+" failed", append(attrs, "error", err)...)
		}
		span.End()
	}
}

func (b *instrumentedBucket) Exists(ctx context.Context, key string) (bool, error) {
	ctx, end := b.begin(ctx, "exists", key)
	ok, err := b.next.Exists(ctx, key)
	end(err)
	return ok, err
}

func (b *instrumentedBucket) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, end := b.begin(ctx, "read", key)
	rc, err := b.next.NewReader(ctx, key)
	end(err)
	if err != nil {
		return nil, err
	}
	return &countingReadCloser{ReadCloser: rc, report: func(n int64) {
		b.in.Recorder.AddBytes(b.in.Driver, DirectionDownload, n)
	}}, nil
}

func (b *instrumentedBucket) Upload(ctx context.Context, key string, r io.Reader, attrs ObjectAttrs) error {
	ctx, end := b.begin(ctx, "upload", key)
	cr := &countingReadCloser{ReadCloser: io.NopCloser(r)}
	err := b.next.Upload(ctx, key, cr, attrs)
	end(err)
	if err == nil {
		b.in.Recorder.AddBytes(b.in.Driver, DirectionUpload, cr.n.Load())
	}
	return err
}

func (b *instrumentedBucket) Delete(ctx context.Context, key string) error {
	ctx, end := b.begin(ctx, "delete", key)
	err := b.next.Delete(ctx, key)
	end(err)
	return err
}

// countingReadCloser counts bytes read and reports the total once on Close.
type countingReadCloser struct {
	io.ReadCloser
	n      atomic.Int64
	report func(int64)
	closed atomic.Bool
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func (c *countingReadCloser) Close() error {
	err := c.ReadCloser.Close()
	if c.report != nil && c.closed.CompareAndSwap(false, true) {
		c.report(c.n.Load())
	}
	return err
}
