package util

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidResolution = errors.New("invalid resolution")

// ParseResolution converts a granularity flag such as "S5", "M15", "H4", "D"
// or "W" into a bar duration. The monthly flag has no fixed length and is
// rejected.
func ParseResolution(s string) (time.Duration, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "":
		return 0, fmt.Errorf("%w: empty", ErrInvalidResolution)
	case "D":
		return 24 * time.Hour, nil
	case "W":
		return 7 * 24 * time.Hour, nil
	}

	var unit time.Duration
	switch s[0] {
	case 'S':
		unit = time.Second
	case 'M':
		unit = time.Minute
	case 'H':
		unit = time.Hour
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}
	return time.Duration(n) * unit, nil
}
