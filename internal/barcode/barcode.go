// Package barcode reads the EAN-13 ISBN barcode printed on book covers.
package barcode

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"

	"github.com/anime-shed/bookscan-go/internal/isbn"
)

// ErrNoISBN is returned when no Bookland EAN-13 barcode could be read
var ErrNoISBN = errors.New("no ISBN barcode found")

// Decoder scans images for EAN-13 symbols
type Decoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// NewDecoder creates a decoder that trades speed for accuracy
func NewDecoder() *Decoder {
	return &Decoder{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// DecodeISBN returns the 13-digit ISBN encoded in the image. Only 978/979
// prefixed codes with a valid check digit are accepted.
func (d *Decoder) DecodeISBN(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("creating bitmap: %w", err)
	}

	// Readers keep state between rows, so one per call
	result, err := oned.NewEAN13Reader().Decode(bmp, d.hints)
	if err != nil {
		return "", ErrNoISBN
	}

	text := result.GetText()
	if !strings.HasPrefix(text, "978") && !strings.HasPrefix(text, "979") {
		return "", fmt.Errorf("%w: %s is not a Bookland code", ErrNoISBN, text)
	}
	if !isbn.Validate(text) {
		return "", fmt.Errorf("%w: %s fails checksum", ErrNoISBN, text)
	}
	return text, nil
}
