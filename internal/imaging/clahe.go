package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/anime-shed/bookscan-go/internal/worker"
)

const histBins = 256

// D65 reference white
const (
	whiteX = 0.95047
	whiteY = 1.0
	whiteZ = 1.08883
)

var srgbToLinear [256]float64

func init() {
	for i := range srgbToLinear {
		c := float64(i) / 255
		if c <= 0.04045 {
			srgbToLinear[i] = c / 12.92
		} else {
			srgbToLinear[i] = math.Pow((c+0.055)/1.055, 2.4)
		}
	}
}

// CLAHE applies contrast limited adaptive histogram equalization to the
// lightness channel of src in CIE L*a*b* space. Chroma is left untouched.
// Tile histograms and the interpolation pass are spread over pool.
func CLAHE(src *image.RGBA, clipLimit float64, grid int, pool *worker.Pool) (*image.RGBA, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty pixel grid")
	}
	if grid <= 0 {
		return nil, fmt.Errorf("invalid tile grid %d", grid)
	}

	// 8-bit lightness plane, L scaled from [0,100] to [0,255]
	light := make([]uint8, w*h)
	err := forStrips(pool, h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < w; x++ {
				l, _, _ := rgbToLab(row[x*4], row[x*4+1], row[x*4+2])
				light[y*w+x] = clampByte(l * 255 / 100)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	tileW, tilesX := tileLayout(w, grid)
	tileH, tilesY := tileLayout(h, grid)

	luts := make([][histBins]uint8, tilesX*tilesY)
	jobs := make([]func(), 0, len(luts))
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			tx, ty := tx, ty
			jobs = append(jobs, func() {
				x0, y0 := tx*tileW, ty*tileH
				x1, y1 := minInt(x0+tileW, w), minInt(y0+tileH, h)
				luts[ty*tilesX+tx] = tileLUT(light, w, x0, y0, x1, y1, clipLimit)
			})
		}
	}
	if err := pool.Run(jobs...); err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	err = forStrips(pool, h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			ty1, ty2, ya := neighbours(y, tileH, tilesY)
			srow := src.Pix[y*src.Stride:]
			drow := dst.Pix[y*dst.Stride:]
			for x := 0; x < w; x++ {
				tx1, tx2, xa := neighbours(x, tileW, tilesX)
				v := light[y*w+x]

				top := (1-xa)*float64(luts[ty1*tilesX+tx1][v]) + xa*float64(luts[ty1*tilesX+tx2][v])
				bottom := (1-xa)*float64(luts[ty2*tilesX+tx1][v]) + xa*float64(luts[ty2*tilesX+tx2][v])
				eq := (1-ya)*top + ya*bottom

				_, a, bb := rgbToLab(srow[x*4], srow[x*4+1], srow[x*4+2])
				r, g, bl := labToRGB(eq*100/255, a, bb)
				drow[x*4] = r
				drow[x*4+1] = g
				drow[x*4+2] = bl
				drow[x*4+3] = srow[x*4+3]
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return dst, nil
}

// tileLayout returns the tile size along one axis and the number of non-empty tiles.
func tileLayout(length, grid int) (size, count int) {
	if grid > length {
		grid = length
	}
	size = (length + grid - 1) / grid
	count = (length + size - 1) / size
	return size, count
}

// tileLUT builds the clipped equalization mapping for one tile.
func tileLUT(light []uint8, stride, x0, y0, x1, y1 int, clipLimit float64) [histBins]uint8 {
	var hist [histBins]int
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[light[y*stride+x]]++
		}
	}
	n := (x1 - x0) * (y1 - y0)

	limit := int(clipLimit * float64(n) / histBins)
	if limit < 1 {
		limit = 1
	}
	clipped := 0
	for i := range hist {
		if hist[i] > limit {
			clipped += hist[i] - limit
			hist[i] = limit
		}
	}
	batch := clipped / histBins
	residual := clipped - batch*histBins
	for i := range hist {
		hist[i] += batch
	}
	if residual > 0 {
		step := histBins / residual
		if step < 1 {
			step = 1
		}
		for i := 0; i < histBins && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}

	var lut [histBins]uint8
	scale := 255.0 / float64(n)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = clampByte(float64(sum) * scale)
	}
	return lut
}

// neighbours returns the two tile indices surrounding pos and the weight of the second.
func neighbours(pos, size, count int) (int, int, float64) {
	f := (float64(pos)+0.5)/float64(size) - 0.5
	i1 := int(math.Floor(f))
	i2 := i1 + 1
	weight := f - float64(i1)
	if i1 < 0 {
		i1 = 0
	}
	if i2 > count-1 {
		i2 = count - 1
	}
	return i1, i2, weight
}

func forStrips(pool *worker.Pool, height int, fn func(y0, y1 int)) error {
	strips := pool.Workers()
	if strips > height {
		strips = height
	}
	rows := (height + strips - 1) / strips
	jobs := make([]func(), 0, strips)
	for y0 := 0; y0 < height; y0 += rows {
		y0, y1 := y0, minInt(y0+rows, height)
		jobs = append(jobs, func() { fn(y0, y1) })
	}
	return pool.Run(jobs...)
}

func labF(t float64) float64 {
	const eps = 216.0 / 24389.0
	if t > eps {
		return math.Cbrt(t)
	}
	return t*(841.0/108.0) + 4.0/29.0
}

func labFInv(t float64) float64 {
	if t > 6.0/29.0 {
		return t * t * t
	}
	return (108.0 / 841.0) * (t - 4.0/29.0)
}

func rgbToLab(r8, g8, b8 uint8) (l, a, b float64) {
	r, g, bl := srgbToLinear[r8], srgbToLinear[g8], srgbToLinear[b8]
	x := (0.4124564*r + 0.3575761*g + 0.1804375*bl) / whiteX
	y := (0.2126729*r + 0.7151522*g + 0.0721750*bl) / whiteY
	z := (0.0193339*r + 0.1191920*g + 0.9503041*bl) / whiteZ
	fx, fy, fz := labF(x), labF(y), labF(z)
	return 116*fy - 16, 500 * (fx - fy), 200 * (fy - fz)
}

func labToRGB(l, a, b float64) (uint8, uint8, uint8) {
	fy := (l + 16) / 116
	fx := fy + a/500
	fz := fy - b/200
	x := labFInv(fx) * whiteX
	y := labFInv(fy) * whiteY
	z := labFInv(fz) * whiteZ

	r := 3.2404542*x - 1.5371385*y - 0.4985314*z
	g := -0.9692660*x + 1.8760108*y + 0.0415560*z
	bl := 0.0556434*x - 0.2040259*y + 1.0572252*z
	return linearToSRGB(r), linearToSRGB(g), linearToSRGB(bl)
}

func linearToSRGB(c float64) uint8 {
	if c <= 0 {
		return 0
	}
	if c <= 0.0031308 {
		return clampByte(c * 12.92 * 255)
	}
	return clampByte((1.055*math.Pow(c, 1/2.4) - 0.055) * 255)
}

func clampByte(v float64) uint8 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
