package domain

import "errors"

// Error taxonomy. Operations wrap these sentinels with detail via
// fmt.Errorf("%w: ...") so transports can map them with errors.Is.
var (
	// ErrUnauthorized: the actor failed the mutation allow-list gate.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidArgument: malformed identifier, empty required string or
	// out-of-range slot index. The operation was not attempted.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound: identifier well-formed but nothing matches it.
	ErrNotFound = errors.New("not found")

	// ErrStoreFailure: the persistence layer failed. Detail is logged
	// server-side; callers only see the generic sentinel.
	ErrStoreFailure = errors.New("store failure")
)
