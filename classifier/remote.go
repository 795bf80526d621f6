package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/cenkalti/backoff/v4"
)

// Remote calls an external inference server that exposes
// POST {baseURL}/predictions/{model} and GET {baseURL}/ping.
type Remote struct {
	baseURL    string
	model      string
	maxRetries uint64
	client     *http.Client
}

type predictRequest struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// predictResponse accepts the output shapes of the servers we talk to: a
// probability vector, raw logits, or a label to probability map.
type predictResponse struct {
	Probabilities []float64          `json:"probabilities"`
	Logits        []float64          `json:"logits"`
	Scores        map[string]float64 `json:"scores"`
}

// NewRemote creates a client for the inference server at baseURL.
func NewRemote(baseURL, model string, timeout time.Duration, maxRetries int) *Remote {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Remote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		maxRetries: uint64(maxRetries),
		client:     &http.Client{Timeout: timeout},
	}
}

func (r *Remote) Name() string { return "remote:" + r.model }

// Ready pings the inference server once.
func (r *Remote) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/ping", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ping returned status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// Predict sends the tensor to the server, retrying transient failures with
// exponential backoff.
func (r *Remote) Predict(ctx context.Context, t Tensor) (Prediction, error) {
	if err := t.Validate(); err != nil {
		return Prediction{}, err
	}

	jsonData, err := json.Marshal(predictRequest{Shape: t.Shape, Data: t.Data})
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result Prediction
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.maxRetries), ctx)
	err = backoff.Retry(func() error {
		var err error
		result, err = r.predictOnce(ctx, jsonData)
		if err != nil {
			log.WithError(err).WithField("model", r.model).Warn("Classifier request failed")
		}
		return err
	}, policy)
	if err != nil {
		return Prediction{}, err
	}
	return result, nil
}

func (r *Remote) predictOnce(ctx context.Context, jsonData []byte) (Prediction, error) {
	url := fmt.Sprintf("%s/predictions/%s", r.baseURL, r.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return Prediction{}, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return Prediction{}, backoff.Permanent(err)
		}
		return Prediction{}, err
	}

	p, err := parsePrediction(body)
	if err != nil {
		return Prediction{}, backoff.Permanent(err)
	}
	return p, nil
}

func parsePrediction(body []byte) (Prediction, error) {
	var out predictResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	switch {
	case len(out.Probabilities) > 0:
		return FromProbabilities(out.Probabilities)
	case len(out.Logits) > 0:
		return FromLogits(out.Logits)
	case len(out.Scores) > 0:
		probs := make([]float64, len(Labels))
		for i, l := range Labels {
			v, ok := out.Scores[string(l)]
			if !ok {
				return Prediction{}, fmt.Errorf("%w: missing score for %s", ErrInvalidOutput, l)
			}
			probs[i] = v
		}
		return FromProbabilities(probs)
	}
	return Prediction{}, errors.Join(ErrInvalidOutput, errors.New("response has no probabilities, logits or scores"))
}
