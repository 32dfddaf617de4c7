// Package duration parses the short interval strings moderators type into
// commands and rule configuration, such as "10m" or "2d".
package duration

import (
	"errors"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalid is returned for any input that is not a single unsigned
// integer followed by one of the units s, m, h or d.
var ErrInvalid = errors.New("invalid duration")

var pattern = regexp.MustCompile(`^(\d+)(s|m|h|d)$`)

var units = map[string]int64{
	"s": 1000,
	"m": 60 * 1000,
	"h": 60 * 60 * 1000,
	"d": 24 * 60 * 60 * 1000,
}

// maxMillis keeps the product representable as a time.Duration.
const maxMillis = int64(1<<63-1) / int64(time.Millisecond)

// Milliseconds returns the millisecond count for s, or false if s is not a
// valid duration.
func Milliseconds(s string) (int64, bool) {
	match := pattern.FindStringSubmatch(s)
	if match == nil {
		return 0, false
	}

	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, false
	}

	mult := units[match[2]]
	if n > maxMillis/mult {
		return 0, false
	}
	return n * mult, true
}

// Parse converts s into a time.Duration. Callers should treat ErrInvalid as
// a user input error.
func Parse(s string) (time.Duration, error) {
	ms, ok := Milliseconds(s)
	if !ok {
		return 0, ErrInvalid
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Valid reports whether s parses.
func Valid(s string) bool {
	_, ok := Milliseconds(s)
	return ok
}
