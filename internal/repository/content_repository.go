package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/internal/storage"
	"github.com/anime-shed/content-analyzer-go/pkg/validation"
)

// StoreContentRepository implements ContentRepository over the HTTP fetcher
// and, when configured, Azure blob storage
type StoreContentRepository struct {
	fetcher      storage.ContentFetcher
	blobs        storage.BlobStorage
	validator    *validation.ContentRefValidator
	fetchTimeout time.Duration
}

// NewContentRepository creates a repository. blobs may be nil.
func NewContentRepository(fetcher storage.ContentFetcher, blobs storage.BlobStorage, validator *validation.ContentRefValidator, fetchTimeout time.Duration) *StoreContentRepository {
	if validator == nil {
		validator = validation.NewContentRefValidator()
	}
	return &StoreContentRepository{
		fetcher:      fetcher,
		blobs:        blobs,
		validator:    validator,
		fetchTimeout: fetchTimeout,
	}
}

// ValidateContentRef validates if the provided reference is acceptable
func (r *StoreContentRepository) ValidateContentRef(ref string) error {
	return r.validator.ValidateContentRef(ref)
}

// Resolve fetches the referenced content and hashes it
func (r *StoreContentRepository) Resolve(ctx context.Context, ref string) (*Content, error) {
	ref = strings.TrimSpace(ref)
	if err := r.validator.ValidateContentRef(ref); err != nil {
		return nil, err
	}

	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid content reference format", err)
	}

	var obj *storage.Object
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		obj, err = r.fetcher.Fetch(ctx, ref)
	case validation.SchemeAzureBlob:
		if r.blobs == nil {
			return nil, apperrors.NewConfigurationError("azblob references need AZURE_STORAGE_ACCOUNT", ErrBlobStorageUnavailable)
		}
		obj, err = r.blobs.Download(ctx, parsed.Host, strings.TrimPrefix(parsed.Path, "/"))
	default:
		return nil, apperrors.NewValidationError("content reference scheme not allowed", ErrUnsupportedScheme)
	}
	if err != nil {
		return nil, err
	}
	if len(obj.Data) == 0 {
		return nil, apperrors.NewValidationError("content reference resolved to no data", ErrEmptyContent)
	}

	return &Content{
		Ref:      ref,
		Data:     obj.Data,
		MimeType: mimeType(obj),
		Hash:     HashBytes(obj.Data),
	}, nil
}

// HashBytes is the content hash used in cache keys
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func mimeType(obj *storage.Object) string {
	if obj.ContentType != "" {
		if mt, _, err := mime.ParseMediaType(obj.ContentType); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(obj.Data))
	return mt
}
