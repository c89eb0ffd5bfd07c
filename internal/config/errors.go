package config

import "errors"

// Validation errors returned by the config package.
var (
	// ErrAppNameRequired is returned when the application name is empty.
	ErrAppNameRequired = errors.New("application name must be specified")
	// ErrInvalidEnvironment is returned for unknown deployment environments.
	ErrInvalidEnvironment = errors.New("invalid environment")
	// ErrServerAddressRequired is returned when the server address is empty.
	ErrServerAddressRequired = errors.New("server address must be specified")
	// ErrInvalidTimeout is returned for non-positive timeouts.
	ErrInvalidTimeout = errors.New("timeout must be positive")
	// ErrInvalidConcurrency is returned for non-positive concurrency caps.
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
	// ErrInvalidRate is returned for rates outside [0,1].
	ErrInvalidRate = errors.New("rate must be between 0 and 1")
	// ErrSourceNameRequired is returned when a source has no name.
	ErrSourceNameRequired = errors.New("source name must be specified")
	// ErrSourceURLRequired is returned when a source has no target URLs.
	ErrSourceURLRequired = errors.New("source needs at least one target URL")
	// ErrDuplicateSource is returned when two sources share a name.
	ErrDuplicateSource = errors.New("duplicate source name")
	// ErrEgressAddressRequired is returned when an egress point has no address.
	ErrEgressAddressRequired = errors.New("egress point address must be specified")
	// ErrEgressIDRequired is returned when an egress point has no id.
	ErrEgressIDRequired = errors.New("egress point id must be specified")
	// ErrUnknownSource is returned when looking up a source that is
	// not configured.
	ErrUnknownSource = errors.New("unknown source")
)
