package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"

	"pixeltruth/metrics"
)

// Fallback selects what Service returns when the model cannot answer.
type Fallback string

const (
	FallbackError Fallback = "error"
	FallbackMock  Fallback = "mock"
)

// ParseFallback maps a config value to a Fallback, defaulting to error.
func ParseFallback(s string) Fallback {
	if Fallback(s) == FallbackMock {
		return FallbackMock
	}
	return FallbackError
}

// Service status values reported by health endpoints.
const (
	StatusLoaded      = "loaded"
	StatusMockMode    = "mock_mode"
	StatusUnavailable = "unavailable"
)

const readyTimeout = 10 * time.Second

// Service is the process-wide classifier. It is built once at startup and is
// read-only afterwards, so one value can be shared by all request handlers.
type Service struct {
	backend  Classifier
	fallback Fallback
	mock     *Random
	ready    bool
}

// NewService wraps backend and probes its readiness once. A backend that
// fails the probe is never called; every prediction goes to the fallback.
func NewService(ctx context.Context, backend Classifier, fallback Fallback) *Service {
	s := &Service{
		backend:  backend,
		fallback: fallback,
		ready:    true,
	}
	if fallback == FallbackMock {
		s.mock = NewRandom(0)
	}

	if rc, ok := backend.(ReadinessChecker); ok {
		ctx, cancel := context.WithTimeout(ctx, readyTimeout)
		defer cancel()
		if err := rc.Ready(ctx); err != nil {
			s.ready = false
			log.WithError(err).WithField("classifier", backend.Name()).
				Warnf("Classifier not ready, serving %s fallback", fallback)
		}
	}

	if s.ready {
		metrics.ClassifierReady.Set(1)
		log.Infof("Classifier %s loaded", backend.Name())
	} else {
		metrics.ClassifierReady.Set(0)
	}
	return s
}

func (s *Service) Name() string { return s.backend.Name() }

// Ready reports whether the backend passed its startup probe.
func (s *Service) Ready() bool { return s.ready }

// Status is the health string for the classifier.
func (s *Service) Status() string {
	switch {
	case s.ready:
		return StatusLoaded
	case s.fallback == FallbackMock:
		return StatusMockMode
	default:
		return StatusUnavailable
	}
}

// Predict never returns an error. Failures are answered by the configured
// fallback: an error-labelled prediction or a mock-flagged random one.
func (s *Service) Predict(ctx context.Context, t Tensor) Prediction {
	if !s.ready {
		return s.fallbackPrediction(ctx, t, "unavailable")
	}

	p, err := s.backend.Predict(ctx, t)
	if err == nil {
		err = p.Validate()
	}
	if err != nil {
		log.WithError(err).WithField("classifier", s.backend.Name()).Error("Classifier prediction failed")
		return s.fallbackPrediction(ctx, t, "inference_error")
	}
	return p
}

func (s *Service) fallbackPrediction(ctx context.Context, t Tensor, reason string) Prediction {
	metrics.ClassifierFallbackTotal.WithLabelValues(reason).Inc()
	if s.fallback != FallbackMock {
		return ErrorPrediction()
	}
	p, err := s.mock.Predict(ctx, t)
	if err != nil {
		log.WithError(err).Error("Mock classifier failed")
		return ErrorPrediction()
	}
	return p
}

// String is used in startup logs.
func (s *Service) String() string {
	return fmt.Sprintf("%s (%s)", s.backend.Name(), s.Status())
}
