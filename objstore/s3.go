package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	// DefaultS3PartSize is the multipart chunk size used when none is configured.
	DefaultS3PartSize = 8 << 20
	// MinS3PartSize is the smallest part S3 accepts for all but the last part.
	MinS3PartSize = 5 << 20

	maxS3Parts = 10000
)

// S3Config configures an S3-compatible client.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	SessionToken    string `yaml:"sessionToken"`
	PartSize        int64  `yaml:"partSize"`
}

// S3API defines the S3 operations used by the S3 driver.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// S3Client provides bucket handles backed by S3.
type S3Client struct {
	api      S3API
	partSize int64
}

// NewS3Client loads the default AWS configuration, applying cfg on top.
// A custom endpoint (LocalStack, MinIO) switches to path-style addressing.
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		})
	}

	return WrapS3Client(s3.NewFromConfig(awsCfg, s3Opts...), cfg.PartSize)
}

// WrapS3Client adapts an existing S3 API client. A zero partSize selects
// DefaultS3PartSize.
func WrapS3Client(api S3API, partSize int64) (*S3Client, error) {
	if api == nil {
		return nil, errors.New("nil S3 client")
	}
	if partSize == 0 {
		partSize = DefaultS3PartSize
	}
	if partSize < MinS3PartSize {
		return nil, fmt.Errorf("S3 part size %d is below the %d byte minimum", partSize, MinS3PartSize)
	}
	return &S3Client{api: api, partSize: partSize}, nil
}

// Bucket returns a handle to the named S3 bucket.
func (c *S3Client) Bucket(name string, _ BucketOptions) Bucket {
	return &s3Bucket{api: c.api, name: name, partSize: c.partSize}
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (c *S3Client) Close() error { return nil }

type s3Bucket struct {
	api      S3API
	name     string
	partSize int64
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func (b *s3Bucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head object %q: %w", key, err)
	}
	return true, nil
}

func (b *s3Bucket) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, notFound(b.name, key)
		}
		return nil, fmt.Errorf("failed to get object %q: %w", key, err)
	}
	return result.Body, nil
}

// Upload buffers at most one part in memory. Bodies that fit in a single part
// go through PutObject; larger bodies use a multipart upload that is aborted
// on failure.
func (b *s3Bucket) Upload(ctx context.Context, key string, r io.Reader, attrs ObjectAttrs) error {
	buf := make([]byte, b.partSize)
	n, err := io.ReadFull(r, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return b.putObject(ctx, key, buf[:n], attrs)
	case err != nil:
		return fmt.Errorf("failed to read upload body for %q: %w", key, err)
	}
	return b.multipartUpload(ctx, key, r, buf, attrs)
}

func (b *s3Bucket) putObject(ctx context.Context, key string, data []byte, attrs ObjectAttrs) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.name),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if attrs.ContentType != "" {
		input.ContentType = aws.String(attrs.ContentType)
	}
	if _, err := b.api.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %q: %w", key, err)
	}
	return nil
}

func (b *s3Bucket) multipartUpload(ctx context.Context, key string, r io.Reader, buf []byte, attrs ObjectAttrs) error {
	create := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	}
	if attrs.ContentType != "" {
		create.ContentType = aws.String(attrs.ContentType)
	}
	out, err := b.api.CreateMultipartUpload(ctx, create)
	if err != nil {
		return fmt.Errorf("failed to start multipart upload for %q: %w", key, err)
	}
	uploadID := out.UploadId

	abort := func(cause error) error {
		_, aerr := b.api.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(b.name),
			Key:      aws.String(key),
			UploadId: uploadID,
		})
		if aerr != nil {
			return errors.Join(cause, fmt.Errorf("failed to abort multipart upload for %q: %w", key, aerr))
		}
		return cause
	}

	var parts []types.CompletedPart
	chunk := buf
	last := false
	for partNum := int32(1); ; partNum++ {
		if partNum > maxS3Parts {
			return abort(fmt.Errorf("object %q exceeds %d parts of %d bytes", key, maxS3Parts, b.partSize))
		}
		up, err := b.api.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(b.name),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(partNum),
			Body:          bytes.NewReader(chunk),
			ContentLength: aws.Int64(int64(len(chunk))),
		})
		if err != nil {
			return abort(fmt.Errorf("failed to upload part %d of %q: %w", partNum, key, err))
		}
		parts = append(parts, types.CompletedPart{ETag: up.ETag, PartNumber: aws.Int32(partNum)})
		if last {
			break
		}

		n, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			last = true
		} else if err != nil {
			return abort(fmt.Errorf("failed to read upload body for %q: %w", key, err))
		}
		chunk = buf[:n]
	}

	_, err = b.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(b.name),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return abort(fmt.Errorf("failed to complete multipart upload for %q: %w", key, err))
	}
	return nil
}

// Delete removes the object. AWS reports success for absent keys; some
// S3-compatible services answer NoSuchKey instead.
func (b *s3Bucket) Delete(ctx context.Context, key string) error {
	_, err := b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return notFound(b.name, key)
		}
		return fmt.Errorf("failed to delete object %q: %w", key, err)
	}
	return nil
}
