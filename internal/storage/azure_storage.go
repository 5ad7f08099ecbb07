package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
)

// BlobStorage downloads blobs by container and name
type BlobStorage interface {
	Download(ctx context.Context, container, blob string) (*Object, error)
}

type azureStorage struct {
	client   *azblob.Client
	maxBytes int64
}

// NewAzureStorage creates a blob client for the account
func NewAzureStorage(accountName string, accountKey string) (BlobStorage, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, apperrors.NewConfigurationError("invalid azure storage credentials", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to create azure blob client", err)
	}

	return &azureStorage{client: client, maxBytes: DefaultMaxContentBytes}, nil
}

func (s *azureStorage) Download(ctx context.Context, container, blob string) (*Object, error) {
	downloadResponse, err := s.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("blob %s/%s not found", container, blob), err)
		}
		return nil, apperrors.NewNetworkError("blob download failed", err)
	}

	retryReader := downloadResponse.Body
	defer retryReader.Close()

	data, err := readLimited(retryReader, s.maxBytes)
	if err != nil {
		return nil, err
	}

	obj := &Object{Data: data}
	if downloadResponse.ContentType != nil {
		obj.ContentType = *downloadResponse.ContentType
	}
	return obj, nil
}
