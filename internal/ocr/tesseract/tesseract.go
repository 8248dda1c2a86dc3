// Package tesseract implements ocr.Recognizer with the Tesseract engine.
// Requires libtesseract and the traineddata files for the configured languages.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"runtime"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/sync/semaphore"

	"github.com/anime-shed/bookscan-go/internal/ocr"
)

// Recognizer reports one region per detected text line.
type Recognizer struct {
	languages      []string
	tessdataPrefix string
	clientFactory  func() *gosseract.Client
	slots          *semaphore.Weighted
}

// New creates a recognizer. An empty tessdataPrefix uses the library default.
// At most maxConcurrent recognitions run at once; 0 means runtime.NumCPU().
func New(languages []string, tessdataPrefix string, maxConcurrent int) *Recognizer {
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.NumCPU()
	}
	return &Recognizer{
		languages:      languages,
		tessdataPrefix: tessdataPrefix,
		clientFactory:  gosseract.NewClient,
		slots:          semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

func (r *Recognizer) Name() string {
	return "tesseract(" + strings.Join(r.languages, "+") + ")"
}

// Recognize runs line-level recognition. Clients are not safe for concurrent
// use, so each call gets its own.
//
// ctx bounds only the wait for a free slot. Once Tesseract starts, the cgo call
// runs to completion even if ctx expires, and the slot stays taken until it
// returns.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image) ([]ocr.RawRegion, error) {
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.slots.Release(1)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	c := r.clientFactory()
	defer c.Close()

	if r.tessdataPrefix != "" {
		if err := c.SetTessdataPrefix(r.tessdataPrefix); err != nil {
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if len(r.languages) > 0 {
		if err := c.SetLanguage(r.languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize lines: %w", err)
	}
	return toRegions(boxes), nil
}

func toRegions(boxes []gosseract.BoundingBox) []ocr.RawRegion {
	regions := make([]ocr.RawRegion, 0, len(boxes))
	for _, b := range boxes {
		minX, minY := float64(b.Box.Min.X), float64(b.Box.Min.Y)
		maxX, maxY := float64(b.Box.Max.X), float64(b.Box.Max.Y)
		regions = append(regions, ocr.RawRegion{
			Polygon:    [][2]float64{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}},
			Text:       b.Word,
			Confidence: b.Confidence / 100.0,
		})
	}
	return regions
}
