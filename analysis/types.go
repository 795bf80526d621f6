// Package analysis runs the image authenticity pipeline: metadata
// extraction, anomaly detection, quality metrics, classification and the
// score fusion that combines them.
package analysis

import (
	"pixeltruth/classifier"
)

// Synthesized ExifMap keys. They are present in every map ExtractMetadata
// returns, which is why an image without EXIF still has four entries.
const (
	KeyFormat          = "format"
	KeyMode            = "mode"
	KeySize            = "size"
	KeyHasTransparency = "has_transparency"
)

// ExifMap is an open tag name to value mapping. Values are strings, int64,
// float64, slices of those, [2]int for size and bool for has_transparency.
type ExifMap map[string]any

// Has reports whether key is present.
func (m ExifMap) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// String returns the value for key if it is a string.
func (m ExifMap) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Size returns the synthesized image size. It also understands the shapes a
// size takes after a JSON round trip.
func (m ExifMap) Size() (width, height int, ok bool) {
	switch v := m[KeySize].(type) {
	case [2]int:
		return v[0], v[1], true
	case []int:
		if len(v) == 2 {
			return v[0], v[1], true
		}
	case []float64:
		if len(v) == 2 {
			return int(v[0]), int(v[1]), true
		}
	case []any:
		if len(v) == 2 {
			w, okW := toInt(v[0])
			h, okH := toInt(v[1])
			return w, h, okW && okH
		}
	}
	return 0, 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// AnomalyFlags are the metadata red flags derived from an ExifMap.
type AnomalyFlags struct {
	MissingExif        bool `json:"missing_exif"`
	MissingCameraInfo  bool `json:"missing_camera_info"`
	SuspiciousSoftware bool `json:"suspicious_software"`
	MissingTimestamp   bool `json:"missing_timestamp"`
	UnusualDimensions  bool `json:"unusual_dimensions"`
}

// QualityMetrics describe pixel statistics of the grayscale image. A nil
// *QualityMetrics means the image could not be analysed.
type QualityMetrics struct {
	Sharpness   float64 `json:"sharpness"`
	NoiseLevel  float64 `json:"noise_level"`
	Brightness  float64 `json:"brightness"`
	Contrast    float64 `json:"contrast"`
	EdgeDensity float64 `json:"edge_density"`
}

// Pipeline stage names, used for timings and metrics labels.
const (
	StageExif          = "exif_extraction"
	StageAnomalies     = "anomaly_detection"
	StageQuality       = "quality_analysis"
	StagePreprocessing = "preprocessing"
	StageInference     = "ml_inference"
	StageScoring       = "scoring"
)

// StageTimings holds per-stage wall clock durations in seconds.
type StageTimings map[string]float64

// Result is the outcome of one analysis. Error is set, and Prediction is
// classifier.LabelError, when the pipeline could not finish.
type Result struct {
	Filename           string                       `json:"filename"`
	Prediction         classifier.Label             `json:"prediction"`
	Confidence         float64                      `json:"confidence_score"`
	OriginalConfidence float64                      `json:"original_confidence"`
	Probabilities      map[classifier.Label]float64 `json:"ml_probabilities"`
	Mock               bool                         `json:"is_mock"`
	Exif               ExifMap                      `json:"exif_data"`
	ExifError          string                       `json:"exif_error,omitempty"`
	Anomalies          AnomalyFlags                 `json:"exif_anomalies"`
	Quality            *QualityMetrics              `json:"quality_metrics"`
	SuspicionScore     float64                      `json:"metadata_suspicion_score"`
	ModelVersion       string                       `json:"model_version"`
	ProcessingTime     float64                      `json:"processing_time"`
	Timings            StageTimings                 `json:"performance_breakdown"`
	Error              string                       `json:"error,omitempty"`
}

// Failed reports whether the analysis ended in an error result.
func (r *Result) Failed() bool {
	return r.Error != ""
}
