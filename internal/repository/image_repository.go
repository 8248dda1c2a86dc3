package repository

import (
	"context"

	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
	"github.com/anime-shed/bookscan-go/internal/storage"
	"github.com/anime-shed/bookscan-go/pkg/validation"
)

// URLImageRepository implements ImageRepository by routing blob URLs to Azure
// and everything else to the HTTP fetcher.
type URLImageRepository struct {
	fetcher   storage.ImageFetcher
	blobs     storage.BlobStore
	validator *validation.URLValidator
}

// NewURLImageRepository creates the repository. blobs may be nil when Azure is not configured.
func NewURLImageRepository(fetcher storage.ImageFetcher, blobs storage.BlobStore, validator *validation.URLValidator) *URLImageRepository {
	return &URLImageRepository{
		fetcher:   fetcher,
		blobs:     blobs,
		validator: validator,
	}
}

func (r *URLImageRepository) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	kind, err := r.validator.ValidateImageURL(imageURL)
	if err != nil {
		return nil, err
	}

	if kind == validation.SourceBlob && r.blobs != nil {
		data, err := r.blobs.Download(ctx, imageURL)
		if err != nil {
			return nil, apperrors.NewNetworkError("Failed to download blob", err)
		}
		return data, nil
	}
	if kind == validation.SourceBlob && r.fetcher == nil {
		return nil, apperrors.NewValidationError("Blob URLs are not supported", ErrBlobSourceUnavailable)
	}

	// Public blobs are plain HTTPS too
	return r.fetcher.FetchImage(ctx, imageURL)
}
