package api

import (
	"errors"
	"strconv"
)

var errOutOfRange = errors.New("value out of range")

// parsePositiveInt parses a positive integer query parameter, capped
// at maximum.
func parsePositiveInt(raw string, maximum int) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errOutOfRange
	}
	if n > maximum {
		n = maximum
	}
	return n, nil
}
