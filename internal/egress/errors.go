package egress

import "errors"

var (
	// ErrNoEgressAvailable is returned when every registered point is
	// filtered out for the requesting source.
	ErrNoEgressAvailable = errors.New("no egress point available")

	// ErrUnknownEgress is returned when a result references a point
	// that was never registered.
	ErrUnknownEgress = errors.New("unknown egress point")

	// ErrDuplicateEgress is returned when a point id is registered twice.
	ErrDuplicateEgress = errors.New("egress point already registered")

	// ErrInvalidPoint is returned when a point is missing its id or
	// network address.
	ErrInvalidPoint = errors.New("invalid egress point")
)
