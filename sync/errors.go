package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks settings that prevent a cycle from running.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound is returned when the main folder does not exist on the source.
	ErrNotFound = errors.New("not found")
	// ErrCycleInProgress rejects a cycle while another one is running.
	ErrCycleInProgress = errors.New("sync cycle already running")
)

// ProviderError is a network or auth failure reported by the source or the
// destination. It ends the current cycle; the next scheduled cycle retries.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func sourceErr(op string, err error) error {
	return &ProviderError{Provider: "source", Op: op, Err: err}
}

func destErr(op string, err error) error {
	return &ProviderError{Provider: "destination", Op: op, Err: err}
}
