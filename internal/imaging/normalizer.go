// Package imaging decodes scan photos and prepares them for text recognition.
package imaging

import (
	"errors"
	"image"

	"golang.org/x/image/draw"

	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
	"github.com/anime-shed/bookscan-go/internal/logger"
	"github.com/anime-shed/bookscan-go/internal/worker"
)

// Options controls normalization
type Options struct {
	ClipLimit    float64
	TileGrid     int
	MaxDimension int // 0 disables downscaling
	MaxPixels    int // grids above this are rejected before decoding; 0 disables
}

// DefaultOptions returns the contrast settings used for book photos
func DefaultOptions() Options {
	return Options{
		ClipLimit:    3.0,
		TileGrid:     8,
		MaxDimension: 3000,
		MaxPixels:    64_000_000,
	}
}

// Normalizer turns uploaded bytes into a contrast-enhanced RGBA grid.
type Normalizer struct {
	opts Options
	pool *worker.Pool
}

// NewNormalizer creates a normalizer. pool may be nil, in which case work runs on the caller's goroutine.
func NewNormalizer(opts Options, pool *worker.Pool) *Normalizer {
	if opts.ClipLimit <= 0 {
		opts.ClipLimit = DefaultOptions().ClipLimit
	}
	if opts.TileGrid <= 0 {
		opts.TileGrid = DefaultOptions().TileGrid
	}
	return &Normalizer{opts: opts, pool: pool}
}

// Normalize decodes data and equalizes its lightness. Undecodable input or an
// empty grid yields an ImageDecodeError.
func (n *Normalizer) Normalize(data []byte) (*image.RGBA, error) {
	img, format, err := Decode(data, n.opts.MaxPixels)
	if errors.Is(err, ErrTooManyPixels) {
		return nil, apperrors.NewImageDecodeError("Image dimensions are too large", err)
	}
	if err != nil {
		return nil, apperrors.NewImageDecodeError("Image could not be decoded", err)
	}

	logger.WithFields(map[string]interface{}{
		"format": format,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Debug("Decoded scan image")

	return n.Enhance(img)
}

// Enhance normalizes an already decoded image
func (n *Normalizer) Enhance(img image.Image) (*image.RGBA, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, apperrors.NewImageDecodeError("Image has no pixels", nil)
	}

	rgba := n.toRGBA(img)
	out, err := CLAHE(rgba, n.opts.ClipLimit, n.opts.TileGrid, n.pool)
	if err != nil {
		return nil, apperrors.NewImageDecodeError("Contrast normalization failed", err)
	}
	return out, nil
}

// toRGBA copies img into a zero-origin RGBA grid, downscaling oversized photos.
func (n *Normalizer) toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	longest := w
	if h > longest {
		longest = h
	}
	if n.opts.MaxDimension > 0 && longest > n.opts.MaxDimension {
		scale := float64(n.opts.MaxDimension) / float64(longest)
		sw := maxInt(1, int(float64(w)*scale+0.5))
		sh := maxInt(1, int(float64(h)*scale+0.5))
		dst := image.NewRGBA(image.Rect(0, 0, sw, sh))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		return dst
	}

	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
