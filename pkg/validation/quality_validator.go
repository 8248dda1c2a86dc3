package validation

import "math"

// Hint types reported to the client when a photo should be retaken.
const (
	HintBlurry        = "blurry"
	HintTooDark       = "too_dark"
	HintTooBright     = "too_bright"
	HintLowResolution = "low_resolution"
	HintSkewed        = "skewed"
)

// QualityThresholds defines configurable thresholds for scan photo validation
type QualityThresholds struct {
	// Sharpness threshold
	MinLaplacianVariance float64

	// Brightness thresholds, mean gray level 0-255
	MinBrightness float64
	MaxBrightness float64

	// Resolution thresholds
	MinWidth  int
	MinHeight int

	// Largest tolerated tilt of text lines, in degrees
	MaxSkewDegrees float64
}

// DefaultQualityThresholds returns the default quality thresholds
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		MinLaplacianVariance: 100.0,
		MinBrightness:        60.0,
		MaxBrightness:        220.0,
		MinWidth:             480,
		MinHeight:            480,
		MaxSkewDegrees:       10.0,
	}
}

// QualityValidator turns image metrics into retake hints
type QualityValidator struct {
	thresholds QualityThresholds
}

// NewQualityValidator creates a new quality validator with default thresholds
func NewQualityValidator() *QualityValidator {
	return &QualityValidator{
		thresholds: DefaultQualityThresholds(),
	}
}

// NewQualityValidatorWithThresholds creates a quality validator with custom thresholds
func NewQualityValidatorWithThresholds(thresholds QualityThresholds) *QualityValidator {
	return &QualityValidator{
		thresholds: thresholds,
	}
}

// QualityIssue represents a quality validation issue
type QualityIssue struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	ActualValue float64 `json:"actual_value,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// ScanQualityMetrics represents the metrics needed for quality validation
type ScanQualityMetrics struct {
	Width        int
	Height       int
	LaplacianVar float64
	Brightness   float64
	SkewDegrees  *float64 // nil when there were too few edges to measure
}

// Validate reports every threshold the photo misses, in a fixed order.
func (qv *QualityValidator) Validate(metrics ScanQualityMetrics) []QualityIssue {
	var issues []QualityIssue

	if metrics.LaplacianVar < qv.thresholds.MinLaplacianVariance {
		issues = append(issues, QualityIssue{
			Type:        HintBlurry,
			Message:     "Image is blurry. Please hold the camera steady and try again.",
			ActualValue: metrics.LaplacianVar,
			Threshold:   qv.thresholds.MinLaplacianVariance,
		})
	}

	if metrics.Brightness < qv.thresholds.MinBrightness {
		issues = append(issues, QualityIssue{
			Type:        HintTooDark,
			Message:     "Image is too dark. Take the photo in more light.",
			ActualValue: metrics.Brightness,
			Threshold:   qv.thresholds.MinBrightness,
		})
	} else if metrics.Brightness > qv.thresholds.MaxBrightness {
		issues = append(issues, QualityIssue{
			Type:        HintTooBright,
			Message:     "Image is too bright. Avoid strong sunlight or flash.",
			ActualValue: metrics.Brightness,
			Threshold:   qv.thresholds.MaxBrightness,
		})
	}

	if metrics.Width < qv.thresholds.MinWidth || metrics.Height < qv.thresholds.MinHeight {
		issues = append(issues, QualityIssue{
			Type:        HintLowResolution,
			Message:     "Image is too small. Move closer to the book.",
			ActualValue: float64(metrics.Width * metrics.Height),
			Threshold:   float64(qv.thresholds.MinWidth * qv.thresholds.MinHeight),
		})
	}

	if metrics.SkewDegrees != nil && qv.thresholds.MaxSkewDegrees > 0 &&
		math.Abs(*metrics.SkewDegrees) > qv.thresholds.MaxSkewDegrees {
		issues = append(issues, QualityIssue{
			Type:        HintSkewed,
			Message:     "Page is tilted. Hold the camera parallel to the page.",
			ActualValue: *metrics.SkewDegrees,
			Threshold:   qv.thresholds.MaxSkewDegrees,
		})
	}

	return issues
}

// HintTypes extracts the issue types in order
func HintTypes(issues []QualityIssue) []string {
	types := make([]string, 0, len(issues))
	for _, issue := range issues {
		types = append(types, issue.Type)
	}
	return types
}
