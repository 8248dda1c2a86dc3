package ocr

import (
	"image"
	"math"
)

const (
	minPolygonPoints = 4
	maxCoordinate    = 1 << 30
)

// ValidPolygon accepts polygons with at least four points and only finite coordinates.
func ValidPolygon(polygon [][2]float64) bool {
	if len(polygon) < minPolygonPoints {
		return false
	}
	for _, p := range polygon {
		for _, v := range p {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// FilterRegions drops regions with malformed geometry. It never fails.
func FilterRegions(regions []RawRegion) []RawRegion {
	kept := make([]RawRegion, 0, len(regions))
	for _, r := range regions {
		if ValidPolygon(r.Polygon) {
			kept = append(kept, r)
		}
	}
	return kept
}

func toPoints(polygon [][2]float64) []image.Point {
	pts := make([]image.Point, len(polygon))
	for i, p := range polygon {
		pts[i] = image.Point{X: roundCoord(p[0]), Y: roundCoord(p[1])}
	}
	return pts
}

func roundCoord(v float64) int {
	v = math.Round(v)
	if v > maxCoordinate {
		return maxCoordinate
	}
	if v < -maxCoordinate {
		return -maxCoordinate
	}
	return int(v)
}
