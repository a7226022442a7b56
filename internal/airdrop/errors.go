package airdrop

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers discriminate with errors.Is; everything the engine
// returns wraps exactly one of these sentinels.
var (
	// ErrConfiguration marks wiring mistakes (wrong treasury, missing admin
	// address). Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransientChain marks RPC-level failures that were retried per the
	// component's policy and still did not succeed.
	ErrTransientChain = errors.New("transient chain error")

	// ErrValidation marks rejected requests: bad input or an operation that
	// violates the state machine. The airdrop record is left untouched.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when the repository has no record for an id.
	ErrNotFound = errors.New("airdrop not found")
)

func validationf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, a...))
}

func configf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, a...))
}
