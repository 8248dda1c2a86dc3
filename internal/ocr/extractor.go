package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
	"time"

	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
	"github.com/anime-shed/bookscan-go/internal/logger"
)

// Extractor calls the engine once per image and returns sanitized blocks.
type Extractor struct {
	engine  Recognizer
	timeout time.Duration
}

// NewExtractor wraps engine. A zero timeout leaves the call bounded only by ctx.
func NewExtractor(engine Recognizer, timeout time.Duration) *Extractor {
	return &Extractor{engine: engine, timeout: timeout}
}

type recognizeResult struct {
	regions []RawRegion
	err     error
}

// Extract runs recognition. Engine failures and empty results both yield an
// empty, non-nil slice. Only a timeout is reported as an error.
func (e *Extractor) Extract(ctx context.Context, img image.Image) ([]TextBlock, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// Buffered so the engine goroutine never blocks after a timeout
	resultCh := make(chan recognizeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- recognizeResult{err: fmt.Errorf("recognition engine panicked: %v", r)}
			}
		}()
		regions, err := e.engine.Recognize(ctx, img)
		resultCh <- recognizeResult{regions: regions, err: err}
	}()

	var res recognizeResult
	select {
	case <-ctx.Done():
		return nil, timeoutError(ctx.Err())
	case res = <-resultCh:
	}

	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			return nil, timeoutError(res.err)
		}
		logger.WithError(res.err).Warn("Recognition engine failed, treating as no text")
		return []TextBlock{}, nil
	}

	valid := FilterRegions(res.regions)
	blocks := make([]TextBlock, 0, len(valid))
	for _, r := range valid {
		blocks = append(blocks, TextBlock{
			Polygon:    toPoints(r.Polygon),
			Text:       cleanText(r.Text),
			Confidence: clampConfidence(r.Confidence),
		})
	}

	logger.WithField("blocks", len(blocks)).WithField("dropped", len(res.regions)-len(valid)).Debug("Recognition finished")
	return blocks, nil
}

func timeoutError(cause error) error {
	if errors.Is(cause, context.Canceled) {
		return fmt.Errorf("recognition cancelled: %w", cause)
	}
	return apperrors.NewRecognitionTimeoutError("Text recognition timed out", cause)
}

func cleanText(s string) string {
	return strings.TrimSpace(strings.ToValidUTF8(s, ""))
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
