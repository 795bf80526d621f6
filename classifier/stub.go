package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Stub is a deterministic, no-network classifier intended for CI and local
// end-to-end runs. The same tensor always yields the same prediction.
type Stub struct{}

func NewStub() *Stub { return &Stub{} }

func (s *Stub) Name() string { return "stub" }

func (s *Stub) Ready(context.Context) error { return nil }

func (s *Stub) Predict(_ context.Context, t Tensor) (Prediction, error) {
	if err := t.Validate(); err != nil {
		return Prediction{}, err
	}

	h := sha256.New()
	buf := make([]byte, 4)
	for _, v := range t.Data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		h.Write(buf)
	}
	sum := h.Sum(nil)

	logits := make([]float64, len(Labels))
	for i := range logits {
		// Map two hash bytes per label to a logit in [-2, 2).
		raw := binary.BigEndian.Uint16(sum[2*i:])
		logits[i] = float64(raw)/16384.0 - 2
	}
	return FromLogits(logits)
}
