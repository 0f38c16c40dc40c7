package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// Environment variables that supply Azure Storage credentials. Without
// either, blobs are read anonymously.
const (
	EnvAzureConnectionString = "AZURE_STORAGE_CONNECTION_STRING"
	EnvAzureKey              = "AZURE_STORAGE_KEY"
)

// AzureBlobAPI is the subset of the blob client used for ranged reads.
type AzureBlobAPI interface {
	GetProperties(ctx context.Context, o *blob.GetPropertiesOptions) (blob.GetPropertiesResponse, error)
	DownloadStream(ctx context.Context, o *blob.DownloadStreamOptions) (blob.DownloadStreamResponse, error)
}

// Azure is a Source backed by ranged downloads of one blob. Every Slice is
// one request.
type Azure struct {
	ctx    context.Context
	client AzureBlobAPI
	name   string
	size   int64
}

// OpenAzure resolves the blob's size from its properties.
func OpenAzure(ctx context.Context, client AzureBlobAPI, account, container, name string) (*Azure, error) {
	loc := "az://" + account + "/" + container + "/" + name
	props, err := client.GetProperties(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("properties %s: %w", loc, err)
	}
	var size int64
	if props.ContentLength != nil {
		size = *props.ContentLength
	}
	return &Azure{ctx: ctx, client: client, name: loc, size: size}, nil
}

// dialAzure builds a blob client for account from the environment: a
// connection string, a shared key, or no credential.
func dialAzure(account, container, name string) (*blob.Client, error) {
	var (
		client *azblob.Client
		err    error
	)
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	switch {
	case os.Getenv(EnvAzureConnectionString) != "":
		client, err = azblob.NewClientFromConnectionString(os.Getenv(EnvAzureConnectionString), nil)
	case os.Getenv(EnvAzureKey) != "":
		cred, cerr := azblob.NewSharedKeyCredential(account, os.Getenv(EnvAzureKey))
		if cerr != nil {
			return nil, fmt.Errorf("azure shared key: %w", cerr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	default:
		client, err = azblob.NewClientWithNoCredential(serviceURL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create azure client: %w", err)
	}
	return client.ServiceClient().NewContainerClient(container).NewBlobClient(name), nil
}

func (o *Azure) Len() int64 { return o.size }

func (o *Azure) Slice(start, end int64) ([]byte, error) {
	if err := checkRange(start, end, o.size); err != nil {
		return nil, err
	}
	if start == end {
		return []byte{}, nil
	}
	resp, err := o.client.DownloadStream(o.ctx, &blob.DownloadStreamOptions{
		Range: blob.HTTPRange{Offset: start, Count: end - start},
	})
	if err != nil {
		return nil, fmt.Errorf("get %s [%d,%d): %w", o.name, start, end, err)
	}
	defer func() { _ = resp.Body.Close() }()

	buf := make([]byte, end-start)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		return nil, fmt.Errorf("read %s [%d,%d): %w", o.name, start, end, err)
	}
	return buf, nil
}

func (o *Azure) Close() error { return nil }

// ParseAzureURL splits "az://account/container/blob" into its parts. The
// blob name may contain slashes.
func ParseAzureURL(location string) (account, container, name string, ok bool) {
	rest, found := strings.CutPrefix(location, "az://")
	if !found {
		return "", "", "", false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
