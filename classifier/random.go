package classifier

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Random is the demo fallback used when the model is not reachable. Every
// prediction it returns has Mock set and must never be shown as a model
// verdict.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom seeds a Random classifier. A zero seed uses the current time.
func NewRandom(seed int64) *Random {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Name() string { return "mock" }

func (r *Random) Predict(context.Context, Tensor) (Prediction, error) {
	r.mu.Lock()
	probs := make([]float64, len(Labels))
	for i := range probs {
		probs[i] = 0.1 + 0.8*r.rng.Float64()
	}
	r.mu.Unlock()

	p, err := FromProbabilities(probs)
	if err != nil {
		return Prediction{}, err
	}
	p.Mock = true
	return p, nil
}
