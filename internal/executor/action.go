// Package executor runs the real-world action behind a single task and
// records the outcome.
package executor

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/luminara-labs/luminara/internal/models"
)

// Action is the collaborator that performs the real-world work for a task.
// Implementations are expected to fail routinely; a returned error becomes
// the task's last_error, not a process failure.
type Action interface {
	// Name returns the action backend identifier.
	Name() string

	// Perform carries out the task's real-world action.
	Perform(ctx context.Context, agent *models.Agent, task *models.Task) error
}

// Simulated is an Action that sleeps for a fixed latency and fails at a
// configurable rate. It stands in for calendar/reminder integrations during
// development.
type Simulated struct {
	Latency     time.Duration
	FailureRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated action with 1.5s of latency and a 10%
// failure rate.
func NewSimulated() *Simulated {
	return &Simulated{
		Latency:     1500 * time.Millisecond,
		FailureRate: 0.1,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name returns the action backend identifier.
func (s *Simulated) Name() string {
	return "simulated"
}

// Perform sleeps for the configured latency, then succeeds or fails by coin
// flip. Context cancellation counts as failure.
func (s *Simulated) Perform(ctx context.Context, _ *models.Agent, _ *models.Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.Latency):
	}

	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()

	if roll < s.FailureRate {
		return errors.New("simulated action failure")
	}
	return nil
}
