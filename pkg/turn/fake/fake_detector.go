// Package fake provides a scripted end-of-utterance detector for tests.
package fake

import (
	"context"
	"sync"

	"github.com/kansoai/interviewkit/pkg/turn"
)

// Detector returns canned probabilities instead of running a model.
type Detector struct {
	mu          sync.Mutex
	probability float64
	threshold   float64
	err         error
	calls       int
}

// NewDetector creates a fake that always reports an over-threshold
// probability, so every silence check commits.
func NewDetector() *Detector {
	return &Detector{probability: 0.9, threshold: 0.85}
}

// NewDetectorWithValues creates a fake with a fixed probability and
// threshold.
func NewDetectorWithValues(probability, threshold float64) *Detector {
	return &Detector{probability: probability, threshold: threshold}
}

// SetError makes subsequent predictions fail.
func (f *Detector) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetProbability changes the canned prediction.
func (f *Detector) SetProbability(p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probability = p
}

// Calls reports how many predictions were requested.
func (f *Detector) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Detector) UnlikelyThreshold(language string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threshold, nil
}

func (f *Detector) SupportsLanguage(language string) bool {
	return true
}

func (f *Detector) PredictEndOfTurn(ctx context.Context, convo turn.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.probability, nil
}
