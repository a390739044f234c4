package draw

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidPeriod reports a malformed period identifier.
var ErrInvalidPeriod = errors.New("draw: invalid period")

// Period identifiers are a four-digit year followed by a three-digit
// sequence number, e.g. "2024151".

// ParsePeriod splits a period into year and sequence.
func ParsePeriod(period string) (year, seq int, err error) {
	if len(period) != 7 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	year, err = strconv.Atoi(period[:4])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	seq, err = strconv.Atoi(period[4:])
	if err != nil || seq < 1 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	return year, seq, nil
}

// FormatPeriod joins year and sequence.
func FormatPeriod(year, seq int) string {
	return fmt.Sprintf("%04d%03d", year, seq)
}

// NextPeriod returns the period after period within the same year. Year
// rollover is decided by the provider, not by arithmetic.
func NextPeriod(period string) (string, error) {
	year, seq, err := ParsePeriod(period)
	if err != nil {
		return "", err
	}
	if seq >= 999 {
		return "", fmt.Errorf("%w: %q has no successor", ErrInvalidPeriod, period)
	}
	return FormatPeriod(year, seq+1), nil
}
