package chat

import (
	"errors"
	"iter"
)

// Outcome is the terminal signal of a Stream.
type Outcome int

const (
	// OutcomePending means the stream has not terminated yet.
	OutcomePending Outcome = iota
	// OutcomeCompleted means the service delivered the whole reply.
	OutcomeCompleted
	// OutcomeUnavailable means no session could be opened; the only fragment was DiagnosticUnavailable.
	OutcomeUnavailable
	// OutcomeFailed means the service failed; the final fragment was DiagnosticFailure.
	OutcomeFailed
	// OutcomeCanceled means the context was cancelled or the consumer stopped early.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeFailed:
		return "failed"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "pending"
	}
}

// ErrNoSession is reported by a stream that could not open a session.
var ErrNoSession = errors.New("no chat session")

// Stream is a finite sequence of reply fragments that can be iterated once. Concatenating every fragment in order
// gives the full reply, or the reply so far followed by a diagnostic.
type Stream struct {
	run func(yield func(string) bool) (Outcome, error)

	consumed bool
	outcome  Outcome
	err      error
}

func newStream(run func(yield func(string) bool) (Outcome, error)) *Stream {
	return &Stream{run: run}
}

// Fragments returns the fragments of the reply. A second iteration yields nothing and leaves the outcome of the
// first one untouched.
func (s *Stream) Fragments() iter.Seq[string] {
	return func(yield func(string) bool) {
		if s.consumed {
			return
		}
		s.consumed = true

		stopped := false
		outcome, err := s.run(func(fragment string) bool {
			if stopped {
				return false
			}
			if !yield(fragment) {
				stopped = true
				return false
			}
			return true
		})
		if stopped && outcome == OutcomeCompleted {
			outcome = OutcomeCanceled
		}
		s.outcome, s.err = outcome, err
	}
}

// Outcome returns how the stream terminated. It is OutcomePending until iteration returns.
func (s *Stream) Outcome() Outcome {
	return s.outcome
}

// Err returns the error behind a non-completed outcome, if any.
func (s *Stream) Err() error {
	return s.err
}

// Diagnostic reports whether the last fragment was a diagnostic rather than reply text.
func (s *Stream) Diagnostic() bool {
	return s.outcome == OutcomeUnavailable || s.outcome == OutcomeFailed
}
