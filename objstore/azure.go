package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureConfig configures an Azure Blob Storage client. Either
// ConnectionString or AccountName/AccountKey must be set; ServiceURL defaults
// to the public endpoint for the account.
type AzureConfig struct {
	ConnectionString string `yaml:"connectionString"`
	AccountName      string `yaml:"accountName"`
	AccountKey       string `yaml:"accountKey"`
	ServiceURL       string `yaml:"serviceURL"`
}

// azureBlobAPI is the subset of blob operations the Azure driver uses.
// Buckets map to containers.
type azureBlobAPI interface {
	Upload(ctx context.Context, container, name string, body io.Reader, contentType string) error
	Download(ctx context.Context, container, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, container, name string) error
	Properties(ctx context.Context, container, name string) error
}

// realAzureBlobAPI adapts *azblob.Client to azureBlobAPI.
type realAzureBlobAPI struct{ client *azblob.Client }

func (r *realAzureBlobAPI) Upload(ctx context.Context, container, name string, body io.Reader, contentType string) error {
	opts := &azblob.UploadStreamOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)}
	}
	_, err := r.client.UploadStream(ctx, container, name, body, opts)
	return err
}

func (r *realAzureBlobAPI) Download(ctx context.Context, container, name string) (io.ReadCloser, error) {
	resp, err := r.client.DownloadStream(ctx, container, name, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (r *realAzureBlobAPI) Delete(ctx context.Context, container, name string) error {
	_, err := r.client.DeleteBlob(ctx, container, name, nil)
	return err
}

func (r *realAzureBlobAPI) Properties(ctx context.Context, container, name string) error {
	_, err := r.client.ServiceClient().NewContainerClient(container).NewBlobClient(name).GetProperties(ctx, nil)
	return err
}

// AzureClient provides bucket handles backed by Azure Blob Storage containers.
type AzureClient struct {
	api azureBlobAPI
}

// NewAzureClient creates a blob client from cfg.
func NewAzureClient(cfg AzureConfig) (*AzureClient, error) {
	if cfg.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
		}
		return WrapAzureClient(client), nil
	}

	if cfg.AccountName == "" || cfg.AccountKey == "" {
		return nil, errors.New("azure: connectionString or accountName and accountKey are required")
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure shared key credential: %w", err)
	}
	serviceURL := cfg.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}
	return WrapAzureClient(client), nil
}

// WrapAzureClient adapts an existing azblob client.
func WrapAzureClient(client *azblob.Client) *AzureClient {
	return &AzureClient{api: &realAzureBlobAPI{client: client}}
}

// Bucket returns a handle to the named container.
func (c *AzureClient) Bucket(name string, _ BucketOptions) Bucket {
	return &azureBucket{api: c.api, container: name}
}

// Close is a no-op; the azblob client has no teardown.
func (c *AzureClient) Close() error { return nil }

type azureBucket struct {
	api       azureBlobAPI
	container string
}

func isAzureNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return true
	}
	// HEAD responses carry no body, so fall back to the status code.
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound &&
		!bloberror.HasCode(err, bloberror.ContainerNotFound)
}

func (a *azureBucket) Exists(ctx context.Context, key string) (bool, error) {
	err := a.api.Properties(ctx, a.container, key)
	if err != nil {
		if isAzureNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get properties of blob %q: %w", key, err)
	}
	return true, nil
}

func (a *azureBucket) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	body, err := a.api.Download(ctx, a.container, key)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, notFound(a.container, key)
		}
		return nil, fmt.Errorf("failed to download blob %q: %w", key, err)
	}
	return body, nil
}

// Upload stages blocks from r and commits the block list only after r is
// drained, so a failed upload leaves no visible blob.
func (a *azureBucket) Upload(ctx context.Context, key string, r io.Reader, attrs ObjectAttrs) error {
	if err := a.api.Upload(ctx, a.container, key, r, attrs.ContentType); err != nil {
		return fmt.Errorf("failed to upload blob %q: %w", key, err)
	}
	return nil
}

func (a *azureBucket) Delete(ctx context.Context, key string) error {
	err := a.api.Delete(ctx, a.container, key)
	if err != nil {
		if isAzureNotFound(err) {
			return notFound(a.container, key)
		}
		return fmt.Errorf("failed to delete blob %q: %w", key, err)
	}
	return nil
}
