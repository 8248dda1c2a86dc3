package factory

import (
	"fmt"

	"github.com/anime-shed/bookscan-go/internal/barcode"
	"github.com/anime-shed/bookscan-go/internal/config"
	"github.com/anime-shed/bookscan-go/internal/extractor"
	"github.com/anime-shed/bookscan-go/internal/ocr"
	"github.com/anime-shed/bookscan-go/internal/ocr/tesseract"
	"github.com/anime-shed/bookscan-go/internal/repository"
	"github.com/anime-shed/bookscan-go/internal/session"
	"github.com/anime-shed/bookscan-go/internal/storage"
	"github.com/anime-shed/bookscan-go/pkg/validation"
)

// RecognizerType names a recognition engine
type RecognizerType string

const (
	// TesseractRecognizer runs Tesseract in process
	TesseractRecognizer RecognizerType = "tesseract"
)

// NewRecognizer creates the recognition engine
func NewRecognizer(recognizerType RecognizerType, cfg *config.Config) (ocr.Recognizer, error) {
	switch recognizerType {
	case TesseractRecognizer:
		return tesseract.New(cfg.OCRLanguages, cfg.TessdataPrefix, cfg.OCRConcurrency), nil
	default:
		return nil, fmt.Errorf("unsupported recognizer type: %s", recognizerType)
	}
}

// NewSessionRepository creates the session store named by SESSION_STORE
func NewSessionRepository(cfg *config.Config) (repository.SessionRepository, error) {
	switch cfg.SessionStore {
	case config.SessionStoreMemory:
		return repository.NewMemorySessionRepository(), nil
	case config.SessionStoreBolt:
		return repository.NewBoltSessionRepository(cfg.SessionDBPath)
	default:
		return nil, fmt.Errorf("unsupported session store: %s", cfg.SessionStore)
	}
}

// NewBlobStore returns nil without error when Azure is not configured
func NewBlobStore(cfg *config.Config) (storage.BlobStore, error) {
	if !cfg.AzureEnabled() {
		return nil, nil
	}
	return storage.NewAzureStorage(cfg.AzureAccountName, cfg.AzureAccountKey, cfg.MaxRequestBodySize)
}

// NewImageSource resolves image URLs. blobs may be nil.
func NewImageSource(cfg *config.Config, blobs storage.BlobStore) repository.ImageRepository {
	fetcher := storage.NewHTTPImageFetcher(cfg.ImageFetchTimeout, cfg.MaxRequestBodySize)
	return repository.NewURLImageRepository(fetcher, blobs, validation.NewURLValidator())
}

// NewExtractors returns the per-step field extractors. The info step gets a
// barcode reader when BARCODE_FALLBACK is on.
func NewExtractors(cfg *config.Config) map[session.Step]extractor.Extractor {
	info := extractor.AuthorIsbnExtractor{}
	if cfg.BarcodeFallback {
		info.Barcode = barcode.NewDecoder()
	}
	return map[session.Step]extractor.Extractor{
		session.StepCover: extractor.TitleExtractor{},
		session.StepInfo:  info,
		session.StepPrice: extractor.PriceExtractor{},
	}
}
