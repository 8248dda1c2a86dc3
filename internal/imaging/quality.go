package imaging

import (
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/anime-shed/bookscan-go/pkg/validation"
)

// Measure computes the sharpness and exposure metrics used for retake hints.
func Measure(img image.Image) validation.ScanQualityMetrics {
	b := img.Bounds()
	m := validation.ScanQualityMetrics{Width: b.Dx(), Height: b.Dy()}
	if b.Empty() {
		return m
	}

	gray := toGray(img)
	m.Brightness = brightness(gray)
	m.LaplacianVar = laplacianVariance(gray)
	m.SkewDegrees = detectSkew(gray)
	return m
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.SetGray(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)).(color.Gray))
		}
	}
	return gray
}

func brightness(gray *image.Gray) float64 {
	values := make([]float64, len(gray.Pix))
	for i, p := range gray.Pix {
		values[i] = float64(p)
	}
	return stat.Mean(values, nil)
}

// laplacianVariance uses the kernel [0 1 0; 1 -4 1; 0 1 0]
func laplacianVariance(gray *image.Gray) float64 {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	data := make([]float64, 0, (w-2)*(h-2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			top := float64(gray.GrayAt(x, y-1).Y)
			bottom := float64(gray.GrayAt(x, y+1).Y)
			left := float64(gray.GrayAt(x-1, y).Y)
			right := float64(gray.GrayAt(x+1, y).Y)
			data = append(data, -4*center+top+bottom+left+right)
		}
	}
	return stat.Variance(data, nil)
}

// Sobel magnitude above which a pixel counts as an edge
const edgeThreshold = 50

// detectSkew fits a line through edge pixels whose gradient is mostly
// vertical, which on a page photo are the top and bottom of text lines.
// It returns nil when there are too few edges to judge.
func detectSkew(gray *image.Gray) *float64 {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()

	var xs, ys []float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx, gy := sobel(gray, x, y)
			if math.Hypot(float64(gx), float64(gy)) > edgeThreshold && abs(gy) > abs(gx) {
				xs = append(xs, float64(x))
				ys = append(ys, float64(y))
			}
		}
	}
	if len(xs) < 10 || stat.Variance(xs, nil) < 1e-10 {
		return nil
	}

	_, slope := stat.LinearRegression(xs, ys, nil, false)
	angle := math.Atan(slope) * 180 / math.Pi
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return nil
	}
	return &angle
}

func sobel(gray *image.Gray, x, y int) (gx, gy int) {
	p := func(dx, dy int) int { return int(gray.GrayAt(x+dx, y+dy).Y) }
	gx = -p(-1, -1) + p(1, -1) - 2*p(-1, 0) + 2*p(1, 0) - p(-1, 1) + p(1, 1)
	gy = -p(-1, -1) - 2*p(0, -1) - p(1, -1) + p(-1, 1) + 2*p(0, 1) + p(1, 1)
	return gx, gy
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
