package testsupport

import (
	"fmt"
	"sync"
)

// Outcome is one scripted result: a value or an error.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Script queues resolver outcomes for tests: each call to Next consumes
// the next queued outcome, and the final outcome repeats once the queue
// is exhausted. Wrap Next in whatever resolver signature the code under
// test expects.
type Script[T any] struct {
	mu       sync.Mutex
	outcomes []Outcome[T]
	calls    int
}

// NewScript returns a Script preloaded with outcomes, in call order.
func NewScript[T any](outcomes ...Outcome[T]) *Script[T] {
	return &Script[T]{outcomes: outcomes}
}

// Queue appends an outcome to the script.
func (s *Script[T]) Queue(value T, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, Outcome[T]{Value: value, Err: err})
}

// Next consumes and returns the next outcome. Calling Next on an empty
// script fails with an error rather than panicking, so a miscounted test
// reports cleanly.
func (s *Script[T]) Next() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.outcomes) == 0 {
		var zero T
		return zero, fmt.Errorf("testsupport: script exhausted at call %d", s.calls)
	}

	outcome := s.outcomes[0]
	if len(s.outcomes) > 1 {
		s.outcomes = s.outcomes[1:]
	}
	return outcome.Value, outcome.Err
}

// Calls reports how many times Next was invoked.
func (s *Script[T]) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
