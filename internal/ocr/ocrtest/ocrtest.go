// Package ocrtest provides a deterministic recognizer for tests.
package ocrtest

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anime-shed/bookscan-go/internal/ocr"
)

// Stub returns a fixed region list. Delay simulates a slow engine and honours
// context cancellation. Gate, when set, blocks each call until it is closed.
type Stub struct {
	mu      sync.Mutex
	regions []ocr.RawRegion
	err     error

	Delay time.Duration
	Gate  chan struct{}

	calls int32
}

// NewStub creates a stub returning regions
func NewStub(regions ...ocr.RawRegion) *Stub {
	return &Stub{regions: regions}
}

// SetRegions replaces the regions returned by later calls
func (s *Stub) SetRegions(regions ...ocr.RawRegion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions = regions
	s.err = nil
}

// SetError makes later calls fail with err
func (s *Stub) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls reports how many times Recognize ran
func (s *Stub) Calls() int {
	return int(atomic.LoadInt32(&s.calls))
}

func (s *Stub) Recognize(ctx context.Context, _ image.Image) ([]ocr.RawRegion, error) {
	atomic.AddInt32(&s.calls, 1)

	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]ocr.RawRegion, len(s.regions))
	copy(out, s.regions)
	return out, nil
}

// Box builds an axis-aligned four-point region
func Box(text string, x, y, w, h, confidence float64) ocr.RawRegion {
	return ocr.RawRegion{
		Polygon:    [][2]float64{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}},
		Text:       text,
		Confidence: confidence,
	}
}

// Block builds a sanitized text block directly, for extractor tests
func Block(text string, x, y, w, h int, confidence float64) ocr.TextBlock {
	return ocr.TextBlock{
		Polygon: []image.Point{
			{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h},
		},
		Text:       text,
		Confidence: confidence,
	}
}
