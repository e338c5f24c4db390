package model

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidGranularity is returned for values outside the supported window set.
var ErrInvalidGranularity = errors.New("invalid granularity")

// Granularity is the server-side aggregation window in minutes.
type Granularity int

var granularities = []Granularity{1, 5, 10, 30, 60}

// Granularities lists the supported aggregation windows in ascending order.
func Granularities() []Granularity {
	return slices.Clone(granularities)
}

// Valid reports whether g is one of the supported windows.
func (g Granularity) Valid() bool {
	return slices.Contains(granularities, g)
}

// Duration converts the window to a time.Duration.
func (g Granularity) Duration() time.Duration {
	return time.Duration(g) * time.Minute
}

func (g Granularity) String() string {
	return strconv.Itoa(int(g))
}

// ParseGranularity parses a minute count and checks it against the supported set.
func ParseGranularity(raw string) (Granularity, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidGranularity, raw)
	}
	g := Granularity(n)
	if !g.Valid() {
		return 0, fmt.Errorf("%w: %d (supported: %v)", ErrInvalidGranularity, n, granularities)
	}
	return g, nil
}
