package expreplay

import (
	"errors"
	"fmt"
)

var (
	errEmptyCache          = errors.New("cannot sample from empty buffer")
	errInsufficientSamples = errors.New("insufficient samples in buffer")
)

// ExpReplayError describes an error that occurred during an operation
// on an experience replay buffer
type ExpReplayError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *ExpReplayError) Error() string {
	return fmt.Sprintf("%v: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *ExpReplayError) Unwrap() error {
	return e.Err
}

// IsEmptyBuffer returns whether err was caused by sampling from an
// empty experience replay buffer
func IsEmptyBuffer(err error) bool {
	return errors.Is(err, errEmptyCache)
}

// IsInsufficientSamples returns whether err was caused by sampling
// from an experience replay buffer holding fewer samples than the
// requested batch size or than the buffer's minimum capacity
func IsInsufficientSamples(err error) bool {
	return errors.Is(err, errInsufficientSamples)
}
