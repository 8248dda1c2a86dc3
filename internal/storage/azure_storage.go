package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// BlobStore reads scan images from and archives them to Azure blob storage
type BlobStore interface {
	Download(ctx context.Context, blobURL string) ([]byte, error)
	Upload(ctx context.Context, container, name string, data []byte) error
}

type azureStorage struct {
	client   *azblob.Client
	maxBytes int64
}

// NewAzureStorage connects with a shared key
func NewAzureStorage(accountName, accountKey string, maxBytes int64) (BlobStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("creating shared key credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("creating blob client: %w", err)
	}

	return &azureStorage{client: client, maxBytes: maxBytes}, nil
}

func (s *azureStorage) Download(ctx context.Context, blobURL string) ([]byte, error) {
	containerName, blobName, err := parseBlobURL(blobURL)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	body := resp.Body
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("blob exceeds %d bytes", s.maxBytes)
	}
	return data, nil
}

func (s *azureStorage) Upload(ctx context.Context, container, name string, data []byte) error {
	if _, err := s.client.CreateContainer(ctx, container, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("creating container %s: %w", container, err)
	}
	if _, err := s.client.UploadBuffer(ctx, container, name, data, nil); err != nil {
		return fmt.Errorf("uploading %s/%s: %w", container, name, err)
	}
	return nil
}

// parseBlobURL accepts both https://acct.blob.core.windows.net/container/path/blob
// and the older https://acct.blob.core.windows.net/container?blob=name form.
func parseBlobURL(blobURL string) (string, string, error) {
	parts, err := azblob.ParseURL(blobURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid blob URL: %w", err)
	}

	containerName, blobName := parts.ContainerName, parts.BlobName
	if blobName == "" {
		u, err := url.Parse(blobURL)
		if err != nil {
			return "", "", fmt.Errorf("invalid blob URL: %w", err)
		}
		blobName = u.Query().Get("blob")
	}
	if containerName == "" || blobName == "" {
		return "", "", fmt.Errorf("blob URL must name a container and a blob: %s", blobURL)
	}
	return containerName, blobName, nil
}
