// Package ocr defines the boundary to the text recognition engine and turns
// its raw output into sanitized text blocks.
package ocr

import (
	"context"
	"image"
)

// RawRegion is one detected text region as reported by an engine. Nothing in
// it is trusted until it passes through the extractor.
type RawRegion struct {
	Polygon    [][2]float64
	Text       string
	Confidence float64
}

// Recognizer is the text recognition engine.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]RawRegion, error)
}

// RecognizerFunc adapts a function to the Recognizer interface
type RecognizerFunc func(ctx context.Context, img image.Image) ([]RawRegion, error)

// Recognize calls f
func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image) ([]RawRegion, error) {
	return f(ctx, img)
}

// TextBlock is a validated region. Polygon has at least four points, Text is
// never nil and Confidence lies in [0,1].
type TextBlock struct {
	Polygon    []image.Point
	Text       string
	Confidence float64
}

// Bounds returns the axis-aligned bounding box of the polygon.
func (b TextBlock) Bounds() image.Rectangle {
	if len(b.Polygon) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: b.Polygon[0], Max: b.Polygon[0]}
	for _, p := range b.Polygon[1:] {
		if p.X < r.Min.X {
			r.Min.X = p.X
		}
		if p.Y < r.Min.Y {
			r.Min.Y = p.Y
		}
		if p.X > r.Max.X {
			r.Max.X = p.X
		}
		if p.Y > r.Max.Y {
			r.Max.Y = p.Y
		}
	}
	return r
}

// Height is the bounding box height, max y minus min y
func (b TextBlock) Height() int {
	return b.Bounds().Dy()
}

// Width is the bounding box width, max x minus min x
func (b TextBlock) Width() int {
	return b.Bounds().Dx()
}
