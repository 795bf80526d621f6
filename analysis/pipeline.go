package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"

	"pixeltruth/classifier"
	"pixeltruth/metrics"
)

// Predictor is the classifier as seen by the pipeline. It never fails; a
// prediction it cannot make comes back labelled classifier.LabelError.
type Predictor interface {
	Predict(ctx context.Context, t classifier.Tensor) classifier.Prediction
}

// Pipeline runs one analysis per call. It holds no per-call state and is
// safe for concurrent use.
type Pipeline struct {
	predictor    Predictor
	modelVersion string
}

// NewPipeline creates a pipeline around an already constructed predictor.
func NewPipeline(predictor Predictor, modelVersion string) *Pipeline {
	return &Pipeline{predictor: predictor, modelVersion: modelVersion}
}

// Analyze runs every stage on the image at path. It always returns a
// Result; failures are reported in Result.Error with the error label.
func (p *Pipeline) Analyze(ctx context.Context, path, filename string) (res *Result) {
	start := time.Now()
	logger := log.WithField("filename", filename)

	res = &Result{
		Filename:     filename,
		ModelVersion: p.modelVersion,
		Timings:      StageTimings{},
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Analysis panicked: %v", r)
			res = failedResult(res, fmt.Errorf("internal error: %v", r))
		}
		res.ProcessingTime = time.Since(start).Seconds()
		metrics.AnalysesTotal.WithLabelValues(string(res.Prediction)).Inc()
	}()

	timed := func(stage string, fn func()) {
		t := time.Now()
		fn()
		d := time.Since(t).Seconds()
		res.Timings[stage] = d
		metrics.StageDurationSeconds.WithLabelValues(stage).Observe(d)
	}

	timed(StageExif, func() {
		var err error
		res.Exif, err = ExtractMetadata(path)
		if err != nil {
			logger.WithError(err).Warn("Metadata extraction degraded")
			res.ExifError = err.Error()
		}
	})

	timed(StageAnomalies, func() {
		res.Anomalies = DetectAnomalies(res.Exif)
	})

	timed(StageQuality, func() {
		var err error
		res.Quality, err = AnalyzeQuality(path)
		if err != nil {
			logger.WithError(err).Warn("Quality analysis skipped")
		}
	})

	var (
		tensor classifier.Tensor
		preErr error
	)
	timed(StagePreprocessing, func() {
		tensor, preErr = PreprocessFile(path)
	})
	if preErr != nil {
		logger.WithError(preErr).Error("Preprocessing failed")
		return failedResult(res, fmt.Errorf("preprocessing failed: %w", preErr))
	}

	var pred classifier.Prediction
	timed(StageInference, func() {
		pred = p.predictor.Predict(ctx, tensor)
	})

	timed(StageScoring, func() {
		res.SuspicionScore = SuspicionScore(res.Anomalies, res.Quality)
		res.Prediction = pred.Label
		res.OriginalConfidence = pred.Confidence
		res.Probabilities = pred.Probabilities
		res.Mock = pred.Mock
		if pred.Failed() {
			res.Confidence = 0
		} else {
			res.Confidence = FuseConfidence(pred.Confidence, res.SuspicionScore)
		}
	})

	logger.WithFields(log.Fields{
		"prediction": res.Prediction,
		"confidence": res.Confidence,
		"suspicion":  res.SuspicionScore,
		"mock":       res.Mock,
	}).Info("Analysis complete")
	return res
}

// failedResult keeps the identity and timing fields of res and replaces the
// analysis outcome with an error.
func failedResult(res *Result, err error) *Result {
	return &Result{
		Filename:      res.Filename,
		Prediction:    classifier.LabelError,
		Probabilities: map[classifier.Label]float64{},
		ModelVersion:  res.ModelVersion,
		Timings:       res.Timings,
		Error:         err.Error(),
	}
}
