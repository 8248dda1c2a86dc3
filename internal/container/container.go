package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/anime-shed/bookscan-go/internal/catalog"
	"github.com/anime-shed/bookscan-go/internal/config"
	"github.com/anime-shed/bookscan-go/internal/factory"
	"github.com/anime-shed/bookscan-go/internal/imaging"
	"github.com/anime-shed/bookscan-go/internal/logger"
	"github.com/anime-shed/bookscan-go/internal/observer"
	"github.com/anime-shed/bookscan-go/internal/ocr"
	"github.com/anime-shed/bookscan-go/internal/repository"
	"github.com/anime-shed/bookscan-go/internal/service"
	"github.com/anime-shed/bookscan-go/internal/transport"
	"github.com/anime-shed/bookscan-go/internal/worker"
)

// Container holds all application dependencies
type Container struct {
	config      *config.Config
	pool        *worker.Pool
	uploads     *worker.Pool
	sessions    repository.SessionRepository
	books       *catalog.Store
	metrics     *observer.MetricsObserver
	coordinator *service.ScanCoordinator
	handler     http.Handler
}

// NewContainer builds the dependency graph. recognizer may be nil, in which
// case the Tesseract engine is created from cfg.
func NewContainer(cfg *config.Config, recognizer ocr.Recognizer) (*Container, error) {
	logger.SetLevel(cfg.LogLevel)

	pool, err := worker.NewPool(cfg.WorkerPoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	if recognizer == nil {
		recognizer, err = factory.NewRecognizer(factory.TesseractRecognizer, cfg)
		if err != nil {
			pool.Close()
			return nil, err
		}
	}

	sessions, err := factory.NewSessionRepository(cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	books, err := catalog.Open(cfg.CatalogDBPath)
	if err != nil {
		sessions.Close()
		pool.Close()
		return nil, err
	}

	blobs, err := factory.NewBlobStore(cfg)
	if err != nil {
		books.Close()
		sessions.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to connect to blob storage: %w", err)
	}

	metrics := observer.NewMetricsObserver()
	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	deps := service.Dependencies{
		Sessions: sessions,
		Images:   factory.NewImageSource(cfg, blobs),
		Normalizer: imaging.NewNormalizer(imaging.Options{
			ClipLimit:    cfg.ClaheClipLimit,
			TileGrid:     cfg.ClaheTileGrid,
			MaxDimension: cfg.MaxImageDimension,
			MaxPixels:    cfg.MaxImagePixels,
		}, pool),
		Reader:     ocr.NewExtractor(recognizer, cfg.RecognitionTimeout),
		Extractors: factory.NewExtractors(cfg),
		Catalog:    books,
		Events:     events,
	}

	// Archive uploads run on their own non-blocking pool, never on the
	// normalization workers.
	var uploads *worker.Pool
	if cfg.ArchiveEnabled() {
		uploads, err = worker.NewUploadPool(cfg.ArchiveWorkers)
		if err != nil {
			books.Close()
			sessions.Close()
			pool.Close()
			return nil, fmt.Errorf("failed to create upload pool: %w", err)
		}
		deps.Archive = &service.Archive{Store: blobs, Container: cfg.ScanArchiveContainer}
		deps.Uploads = uploads
	}

	coordinator := service.NewScanCoordinator(deps)
	handler := transport.NewHandler(coordinator, books, metrics, cfg)

	return &Container{
		config:      cfg,
		pool:        pool,
		uploads:     uploads,
		sessions:    sessions,
		books:       books,
		metrics:     metrics,
		coordinator: coordinator,
		handler:     handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Coordinator returns the scan coordinator
func (c *Container) Coordinator() *service.ScanCoordinator {
	return c.coordinator
}

// Catalog returns the book store
func (c *Container) Catalog() *catalog.Store {
	return c.books
}

// PurgeStaleSessions removes sessions idle for longer than ttl
func (c *Container) PurgeStaleSessions(ctx context.Context, ttl time.Duration) (int, error) {
	return c.sessions.PurgeBefore(ctx, time.Now().Add(-ttl))
}

// Close waits for running archive uploads, then closes the stores
func (c *Container) Close() error {
	if c.uploads != nil {
		c.uploads.Close()
	}
	c.pool.Close()
	var firstErr error
	if err := c.books.Close(); err != nil {
		firstErr = err
	}
	if err := c.sessions.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
