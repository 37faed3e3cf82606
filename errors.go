package mealscore

import "errors"

var (
	// ErrGenerationFailure marks a failed call to the generator itself
	// (transport, status, timeout). It is never repaired.
	ErrGenerationFailure = errors.New("generation failure")

	// ErrInvalidGenerationOutput marks output that failed validation even
	// after the single repair attempt.
	ErrInvalidGenerationOutput = errors.New("assessment unavailable")

	// ErrEntityNotFound is returned when a comparison targets an entity with
	// no stored assessment.
	ErrEntityNotFound = errors.New("entity not found")
)
