package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	"github.com/gen2brain/heic"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// ErrTooManyPixels is returned when the header announces a grid larger than
// the configured limit. The pixels are never decoded in that case.
var ErrTooManyPixels = errors.New("image exceeds pixel limit")

// Decode turns raw bytes into an image. HEIC/HEIF phone photos are detected by
// their ftyp brand since the image package has no registered decoder for them.
// The header is read first and grids above maxPixels are rejected; maxPixels
// <= 0 disables the check.
func Decode(data []byte, maxPixels int) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image data")
	}

	heif := isHEIC(data)

	var cfg image.Config
	var err error
	format := "heic"
	if heif {
		cfg, err = heic.DecodeConfig(bytes.NewReader(data))
	} else {
		cfg, format, err = image.DecodeConfig(bytes.NewReader(data))
	}
	if err != nil {
		return nil, format, fmt.Errorf("reading image header: %w", err)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, format, fmt.Errorf("%w: %dx%d is over %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)
	}

	if heif {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "heic", fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, "heic", nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, fmt.Errorf("decoding image: %w", err)
	}
	return img, format, nil
}

// isHEIC checks for an ftyp box with a HEIF family brand at offset 4
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}
