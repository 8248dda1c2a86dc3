package tesseract

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
)

func TestToRegions(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Box: image.Rect(10, 20, 110, 60), Word: "算法导论", Confidence: 91.5},
		{Box: image.Rect(0, 0, 5, 5), Word: "", Confidence: 0},
	}

	regions := toRegions(boxes)

	assert.Len(t, regions, 2)
	assert.Equal(t, [][2]float64{{10, 20}, {110, 20}, {110, 60}, {10, 60}}, regions[0].Polygon)
	assert.Equal(t, "算法导论", regions[0].Text)
	assert.InDelta(t, 0.915, regions[0].Confidence, 1e-9)
	assert.Equal(t, 0.0, regions[1].Confidence)
}

func TestName(t *testing.T) {
	assert.Equal(t, "tesseract(chi_sim+eng)", New([]string{"chi_sim", "eng"}, "", 0).Name())
}

func TestRecognize_WaitsForFreeSlot(t *testing.T) {
	r := New([]string{"eng"}, "", 1)
	assert.NoError(t, r.slots.Acquire(context.Background(), 1))
	defer r.slots.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Recognize(ctx, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
