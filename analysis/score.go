package analysis

import "math"

// Anomaly weights of the suspicion score, in tenths so the sum is exact.
const (
	weightMissingExif        = 3
	weightSuspiciousSoftware = 4
	weightMissingCameraInfo  = 2
	weightUnusualDimensions  = 2
	weightMissingTimestamp   = 1

	// Quality bonuses: generated images tend to be unusually crisp and clean.
	bonusSharpness         = 1
	sharpnessThreshold     = 1000.0
	bonusLowNoise          = 1
	noiseThreshold         = 10.0
	scoreScale             = 10
	suspicionFuseThreshold = 0.5
	fuseModelWeight        = 0.8
	fuseSuspicionWeight    = 0.2
)

// SuspicionScore combines anomaly flags and quality metrics into a value in
// [0,1]. Quality bonuses are skipped when q is nil.
func SuspicionScore(flags AnomalyFlags, q *QualityMetrics) float64 {
	score := 0
	if flags.MissingExif {
		score += weightMissingExif
	}
	if flags.SuspiciousSoftware {
		score += weightSuspiciousSoftware
	}
	if flags.MissingCameraInfo {
		score += weightMissingCameraInfo
	}
	if flags.UnusualDimensions {
		score += weightUnusualDimensions
	}
	if flags.MissingTimestamp {
		score += weightMissingTimestamp
	}

	if q != nil {
		if q.Sharpness > sharpnessThreshold {
			score += bonusSharpness
		}
		if q.NoiseLevel < noiseThreshold {
			score += bonusLowNoise
		}
	}
	return math.Min(float64(score)/scoreScale, 1)
}

// FuseConfidence blends the classifier confidence with the suspicion score.
// Only a suspicion strictly above 0.5 changes the confidence.
func FuseConfidence(raw, suspicion float64) float64 {
	if suspicion <= suspicionFuseThreshold {
		return raw
	}
	return math.Min(raw*fuseModelWeight+suspicion*fuseSuspicionWeight, 1)
}
