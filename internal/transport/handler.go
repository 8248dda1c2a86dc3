package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/bookscan-go/internal/catalog"
	"github.com/anime-shed/bookscan-go/internal/config"
	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
	"github.com/anime-shed/bookscan-go/internal/evaluation"
	"github.com/anime-shed/bookscan-go/internal/logger"
	"github.com/anime-shed/bookscan-go/internal/observer"
	"github.com/anime-shed/bookscan-go/internal/service"
	"github.com/anime-shed/bookscan-go/internal/session"
	"github.com/anime-shed/bookscan-go/pkg/models"
)

// Scanner is the scan session surface the handler needs
type Scanner interface {
	Scan(ctx context.Context, req service.ScanRequest) (*service.ScanResult, error)
	GetSession(ctx context.Context, id string) (*session.ScanSession, error)
	DeleteSession(ctx context.Context, id string) error
	Finalize(ctx context.Context, id string, copies int) (*catalog.Book, error)
}

// Books is the catalog surface the handler needs
type Books interface {
	CreateBook(ctx context.Context, nb catalog.NewBook) (*catalog.Book, error)
	GetBook(ctx context.Context, id string) (*catalog.Book, error)
	DeleteBook(ctx context.Context, id string) error
	Search(ctx context.Context, keyword string, page, pageSize int) (*catalog.Page, error)
	Stats(ctx context.Context) (catalog.Stats, error)
}

func NewHandler(scanner Scanner, books Books, metrics *observer.MetricsObserver, cfg *config.Config) http.Handler {
	r := gin.New()

	// Add middleware
	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/stats", stats(books, metrics))

	r.POST("/scan", scanPage(scanner, cfg))
	r.GET("/sessions/:id", getSession(scanner))
	r.DELETE("/sessions/:id", deleteSession(scanner))
	r.POST("/sessions/:id/finalize", finalizeSession(scanner, cfg))

	r.POST("/books", createBook(books))
	r.GET("/books", searchBooks(books))
	r.GET("/books/:id", getBook(books))
	r.DELETE("/books/:id", deleteBook(books))

	r.POST("/evaluate", evaluate)

	return r
}

func scanPage(s Scanner, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		req, err := bindScanRequest(c)
		if err != nil {
			respondError(c, err)
			return
		}

		logger.WithFields(logrus.Fields{
			"step":       req.Step,
			"session_id": req.SessionID,
			"upload":     len(req.Image) > 0,
		}).Info("Processing scan request")

		result, err := s.Scan(ctx, req)
		if err != nil {
			var appErr *apperrors.AppError
			if !errors.As(err, &appErr) && errors.Is(err, context.DeadlineExceeded) {
				err = apperrors.NewTimeoutError("Scan timed out", err)
			}
			respondScanError(c, result, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// bindScanRequest accepts a multipart upload or a JSON body naming an image URL.
func bindScanRequest(c *gin.Context) (service.ScanRequest, error) {
	var form models.ScanURLRequest
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(&form); err != nil {
			return service.ScanRequest{}, bodyError("Invalid request format", err)
		}
		return service.ScanRequest{ImageURL: form.ImageURL, Step: form.Step, SessionID: form.SessionID}, nil
	}

	if err := c.ShouldBind(&form); err != nil {
		return service.ScanRequest{}, bodyError("Invalid form fields", err)
	}
	req := service.ScanRequest{ImageURL: form.ImageURL, Step: form.Step, SessionID: form.SessionID}

	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return req, bodyError("Invalid upload", err)
	}
	f, err := fh.Open()
	if err != nil {
		return req, apperrors.NewValidationError("Upload could not be read", err)
	}
	defer f.Close()

	req.Image, err = io.ReadAll(f)
	if err != nil {
		return req, bodyError("Upload could not be read", err)
	}
	return req, nil
}

func getSession(s Scanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.GetSession(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		var next *session.Step
		for _, step := range session.Steps {
			if !sess.HasCompleted(step) {
				st := step
				next = &st
				break
			}
		}
		missing := sess.Missing(catalog.RequiredFields...)
		if missing == nil {
			missing = []string{}
		}
		c.JSON(http.StatusOK, models.SessionResponse{Session: sess, NextStep: next, Missing: missing})
	}
}

func deleteSession(s Scanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func finalizeSession(s Scanner, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		var req models.FinalizeRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				respondError(c, bodyError("Invalid request format", err))
				return
			}
		}

		id := c.Param("id")
		book, err := s.Finalize(ctx, id, req.Copies)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.FinalizeResponse{SessionID: id, Book: book})
	}
}

func createBook(b Books) gin.HandlerFunc {
	return func(c *gin.Context) {
		var nb catalog.NewBook
		if err := c.ShouldBindJSON(&nb); err != nil {
			respondError(c, bodyError("Invalid request format", err))
			return
		}
		book, err := b.CreateBook(c.Request.Context(), nb)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, book)
	}
}

func searchBooks(b Books) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(catalog.DefaultPageSize)))

		result, err := b.Search(c.Request.Context(), c.Query("keyword"), page, pageSize)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func getBook(b Books) gin.HandlerFunc {
	return func(c *gin.Context) {
		book, err := b.GetBook(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, book)
	}
}

func deleteBook(b Books) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := b.DeleteBook(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func evaluate(c *gin.Context) {
	var req models.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bodyError("Invalid request format", err))
		return
	}

	scores := make([]evaluation.FieldScore, 0, len(req.Pairs))
	for _, p := range req.Pairs {
		scores = append(scores, evaluation.Compare(p.Field, p.Expected, p.Actual))
	}
	c.JSON(http.StatusOK, models.EvaluateResponse{Report: evaluation.Summarize(scores)})
}

func stats(b Books, metrics *observer.MetricsObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.StatsResponse{}
		if metrics != nil {
			resp.Scans = metrics.Snapshot()
		}
		st, err := b.Stats(c.Request.Context())
		if err != nil {
			respondError(c, apperrors.NewInternalError("Failed to read catalog", err))
			return
		}
		resp.Catalog = st
		c.JSON(http.StatusOK, resp)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":             c.Request.Method,
			"path":               c.FullPath(),
			"status":             c.Writer.Status(),
			"ip":                 c.ClientIP(),
			"user_agent":         c.Request.UserAgent(),
			"processing_time_ms": time.Since(start).Milliseconds(),
		}).Info("Request handled")
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, c.Errors.Last().Err)
		}
	}
}

// bodyError maps an oversized body to 413 and anything else to 400
func bodyError(message string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &apperrors.AppError{
			Type:       apperrors.ErrorTypeValidation,
			Message:    fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit),
			StatusCode: http.StatusRequestEntityTooLarge,
			Cause:      err,
		}
	}
	return apperrors.NewValidationError(message, err)
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) models.ErrorResponse {
	code := determineStatusCode(err)
	resp := models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: err.Error(),
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Type = string(appErr.Type)
		resp.Details = appErr.Details
		resp.Retryable = appErr.Retryable
	}
	return resp
}

func respondError(c *gin.Context, err error) {
	respondWith(c, errorBody(err), err)
}

func respondScanError(c *gin.Context, result *service.ScanResult, err error) {
	body := errorBody(err)
	if result != nil {
		body.SessionID = result.SessionID
		body.Hints = result.Hints
	}
	respondWith(c, body, err)
}

func respondWith(c *gin.Context, body models.ErrorResponse, err error) {
	code := determineStatusCode(err)
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Info("Request rejected")
	}

	c.AbortWithStatusJSON(code, body)
}
