package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anime-shed/bookscan-go/internal/catalog"
	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
	"github.com/anime-shed/bookscan-go/internal/extractor"
	"github.com/anime-shed/bookscan-go/internal/imaging"
	"github.com/anime-shed/bookscan-go/internal/logger"
	"github.com/anime-shed/bookscan-go/internal/observer"
	"github.com/anime-shed/bookscan-go/internal/ocr"
	"github.com/anime-shed/bookscan-go/internal/repository"
	"github.com/anime-shed/bookscan-go/internal/session"
	"github.com/anime-shed/bookscan-go/internal/storage"
	"github.com/anime-shed/bookscan-go/internal/worker"
	"github.com/anime-shed/bookscan-go/pkg/validation"
)

const archiveTimeout = 30 * time.Second

// ScanRequest carries one photo for one step. Exactly one of Image and
// ImageURL should be set; Image wins when both are.
type ScanRequest struct {
	Image     []byte
	ImageURL  string
	Step      string
	SessionID string
}

// ScanResult is the session state after a scan. On failure the coordinator
// still returns a result carrying the session id and quality hints.
type ScanResult struct {
	SessionID      string            `json:"session_id"`
	Metadata       session.Metadata  `json:"metadata"`
	NextStep       *session.Step     `json:"next_step"`
	CompletedSteps []session.Step    `json:"completed_steps"`
	Fields         []extractor.Field `json:"fields,omitempty"`
	Hints          []string          `json:"hints"`
}

// Catalog admits finished sessions
type Catalog interface {
	Admit(ctx context.Context, scan *session.ScanSession, copies int) (*catalog.Book, error)
}

// TextReader turns a normalized image into text blocks
type TextReader interface {
	Extract(ctx context.Context, img image.Image) ([]ocr.TextBlock, error)
}

// Archive uploads scan photos for later review
type Archive struct {
	Store     storage.BlobStore
	Container string
}

// Dependencies wires a ScanCoordinator. Images, Catalog, Archive, Events and
// Uploads are optional. Uploads should be a non-blocking pool of its own so
// slow archive writes never hold up image normalization.
type Dependencies struct {
	Sessions   repository.SessionRepository
	Images     repository.ImageRepository
	Normalizer *imaging.Normalizer
	Reader     TextReader
	Extractors map[session.Step]extractor.Extractor
	Quality    *validation.QualityValidator
	Catalog    Catalog
	Archive    *Archive
	Events     observer.Subject
	Uploads    *worker.Pool
}

// ScanCoordinator drives scan sessions through their steps. Calls for
// different sessions run in parallel; a second concurrent call for the same
// session is rejected with a SessionBusyError.
type ScanCoordinator struct {
	deps Dependencies
	now  func() time.Time
	ids  func() string

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewScanCoordinator creates a coordinator. Steps without an entry in
// deps.Extractors get the default extractor for that step.
func NewScanCoordinator(deps Dependencies) *ScanCoordinator {
	extractors := map[session.Step]extractor.Extractor{
		session.StepCover: extractor.TitleExtractor{},
		session.StepInfo:  extractor.AuthorIsbnExtractor{},
		session.StepPrice: extractor.PriceExtractor{},
	}
	for step, e := range deps.Extractors {
		extractors[step] = e
	}
	deps.Extractors = extractors
	if deps.Quality == nil {
		deps.Quality = validation.NewQualityValidator()
	}

	return &ScanCoordinator{
		deps:     deps,
		now:      time.Now,
		ids:      uuid.NewString,
		inFlight: make(map[string]struct{}),
	}
}

func (c *ScanCoordinator) acquire(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[id]; busy {
		return false
	}
	c.inFlight[id] = struct{}{}
	return true
}

func (c *ScanCoordinator) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)
}

// Scan processes one photo. The session is created when SessionID is empty
// or unknown; an unknown id is kept as given. A failed step leaves the stored
// session untouched.
func (c *ScanCoordinator) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	step, err := session.ParseStep(req.Step)
	if err != nil {
		return nil, err
	}

	id := req.SessionID
	if id == "" {
		id = c.ids()
	}
	if !c.acquire(id) {
		return &ScanResult{SessionID: id, Hints: []string{}}, apperrors.NewSessionBusyError(id)
	}
	defer c.release(id)

	log := logger.ForScan(id, string(step))
	started := c.now()
	c.publish(ctx, observer.ScanEvent{EventType: observer.ScanStarted, SessionID: id, Step: string(step)})

	result := &ScanResult{SessionID: id, Hints: []string{}}
	fields, err := c.extract(ctx, id, step, req, result)
	if err != nil {
		c.publishFailure(ctx, id, step, err)
		log.WithError(err).Debug("Scan step failed")
		return result, err
	}

	current, err := c.loadOrCreate(ctx, id)
	if err != nil {
		c.publishFailure(ctx, id, step, err)
		return result, err
	}
	current.Apply(step, fields, c.now())
	if err := c.deps.Sessions.Save(ctx, current); err != nil {
		err = apperrors.NewInternalError("Failed to save session", err)
		c.publishFailure(ctx, id, step, err)
		return result, err
	}

	result.Metadata = current.Metadata
	result.CompletedSteps = current.CompletedSteps
	result.NextStep = step.Next()
	result.Fields = fields

	elapsed := c.now().Sub(started)
	c.publish(ctx, observer.ScanEvent{
		EventType:      observer.ScanCompleted,
		SessionID:      id,
		Step:           string(step),
		ProcessingTime: elapsed,
		Metadata:       map[string]interface{}{"fields": len(fields)},
	})
	return result, nil
}

// extract runs the pipeline for one photo and fills in quality hints as soon
// as they are known.
func (c *ScanCoordinator) extract(ctx context.Context, id string, step session.Step, req ScanRequest, result *ScanResult) ([]extractor.Field, error) {
	data, err := c.imageBytes(ctx, req)
	if err != nil {
		return nil, err
	}

	img, err := c.deps.Normalizer.Normalize(data)
	if err != nil {
		return nil, err
	}
	result.Hints = validation.HintTypes(c.deps.Quality.Validate(imaging.Measure(img)))
	c.archive(id, step, data)

	blocks, err := c.deps.Reader.Extract(ctx, img)
	if err != nil {
		return nil, err
	}
	logger.ForScan(id, string(step)).WithField("blocks", len(blocks)).Debug("Text blocks extracted")

	return c.deps.Extractors[step].Extract(extractor.Input{Image: img, Blocks: blocks})
}

func (c *ScanCoordinator) imageBytes(ctx context.Context, req ScanRequest) ([]byte, error) {
	if len(req.Image) > 0 {
		return req.Image, nil
	}
	if req.ImageURL == "" {
		return nil, apperrors.NewValidationError("An image file or image_url is required", nil)
	}
	if c.deps.Images == nil {
		return nil, apperrors.NewValidationError("Image URLs are not supported by this server", nil)
	}
	return c.deps.Images.FetchImage(ctx, req.ImageURL)
}

func (c *ScanCoordinator) loadOrCreate(ctx context.Context, id string) (*session.ScanSession, error) {
	s, err := c.deps.Sessions.Get(ctx, id)
	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, repository.ErrSessionNotFound):
		return session.New(id, c.now()), nil
	default:
		return nil, apperrors.NewInternalError("Failed to load session", err)
	}
}

// archive uploads the original bytes in the background. Failures are logged
// and never affect the scan.
func (c *ScanCoordinator) archive(id string, step session.Step, data []byte) {
	a := c.deps.Archive
	if a == nil || a.Store == nil || a.Container == "" {
		return
	}
	name := fmt.Sprintf("%s/%s-%d.img", id, step, c.now().Unix())
	upload := func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := a.Store.Upload(ctx, a.Container, name, data); err != nil {
			logger.ForScan(id, string(step)).WithError(err).Warn("Failed to archive scan image")
			return
		}
		logger.ForScan(id, string(step)).WithField("blob", name).Debug("Archived scan image")
	}

	if c.deps.Uploads == nil {
		go upload()
		return
	}
	if err := c.deps.Uploads.Submit(upload); err != nil {
		logger.ForScan(id, string(step)).WithError(err).WithField("blob", name).Warn("Archive upload dropped")
	}
}

// GetSession returns the stored session
func (c *ScanCoordinator) GetSession(ctx context.Context, id string) (*session.ScanSession, error) {
	s, err := c.deps.Sessions.Get(ctx, id)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, apperrors.NewSessionNotFoundError(id, err)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to load session", err)
	}
	return s, nil
}

// DeleteSession abandons a session
func (c *ScanCoordinator) DeleteSession(ctx context.Context, id string) error {
	if !c.acquire(id) {
		return apperrors.NewSessionBusyError(id)
	}
	defer c.release(id)

	if _, err := c.GetSession(ctx, id); err != nil {
		return err
	}
	if err := c.deps.Sessions.Delete(ctx, id); err != nil {
		return apperrors.NewInternalError("Failed to delete session", err)
	}
	return nil
}

// Finalize admits the session to the catalog and deletes it. The session is
// kept when admission fails so missing steps can still be scanned.
func (c *ScanCoordinator) Finalize(ctx context.Context, id string, copies int) (*catalog.Book, error) {
	if c.deps.Catalog == nil {
		return nil, apperrors.NewInternalError("No catalog configured", nil)
	}
	if !c.acquire(id) {
		return nil, apperrors.NewSessionBusyError(id)
	}
	defer c.release(id)

	s, err := c.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	book, err := c.deps.Catalog.Admit(ctx, s, copies)
	if err != nil {
		return nil, err
	}
	if err := c.deps.Sessions.Delete(ctx, id); err != nil {
		logger.WithError(err).WithField("session_id", id).Error("Book admitted but session could not be deleted")
	}

	c.publish(ctx, observer.ScanEvent{
		EventType: observer.SessionFinalized,
		SessionID: id,
		Metadata:  map[string]interface{}{"book_id": book.ID},
	})
	return book, nil
}

func (c *ScanCoordinator) publish(ctx context.Context, event observer.ScanEvent) {
	if c.deps.Events != nil {
		event.Timestamp = c.now()
		c.deps.Events.NotifyObservers(ctx, event)
	}
}

func (c *ScanCoordinator) publishFailure(ctx context.Context, id string, step session.Step, err error) {
	errType := string(apperrors.ErrorTypeInternal)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		errType = string(appErr.Type)
	}
	c.publish(ctx, observer.ScanEvent{
		EventType:    observer.ScanFailed,
		SessionID:    id,
		Step:         string(step),
		ErrorType:    errType,
		ErrorMessage: err.Error(),
	})
}
