package interndir

import (
	"errors"
	"fmt"

	"github.com/hupe1980/interndir/internal/arena"
	"github.com/hupe1980/interndir/internal/cache"
	"github.com/hupe1980/interndir/internal/resource"
	"github.com/hupe1980/interndir/internal/srptable"
)

var (
	// ErrConfiguration is returned when construction parameters are rejected.
	// Nothing is built in that case.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrCapacityExhausted is returned when a tier, table or heap is full.
	ErrCapacityExhausted = errors.New("capacity exhausted")

	// ErrCorruption is wrapped by every verification failure.
	ErrCorruption = errors.New("corruption detected")

	// ErrNotFound is returned when a removal finds nothing.
	ErrNotFound = errors.New("not found")
)

// CorruptionError names the component whose invariants failed.
//
// The original underlying error can be accessed via errors.Unwrap.
type CorruptionError struct {
	Component string
	cause     error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCorruption, e.Component, e.cause)
}

func (e *CorruptionError) Unwrap() error { return e.cause }

// Is makes every CorruptionError match ErrCorruption.
func (e *CorruptionError) Is(target error) bool { return target == ErrCorruption }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, arena.ErrConfig) || errors.Is(err, srptable.ErrConfig) {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	if errors.Is(err, srptable.ErrFull) ||
		errors.Is(err, arena.ErrArenaFull) ||
		errors.Is(err, resource.ErrMemoryLimitExceeded) {
		return fmt.Errorf("%w: %w", ErrCapacityExhausted, err)
	}

	if errors.Is(err, arena.ErrCorrupt) || errors.Is(err, srptable.ErrCorrupt) || errors.Is(err, cache.ErrInconsistent) {
		return fmt.Errorf("%w: %w", ErrCorruption, err)
	}

	return err
}
