package draw

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const (
	RedCount = 6
	RedMax   = 33
	BlueMax  = 16
)

// ErrInvalidNumbers reports a pick or result outside the game's rules.
var ErrInvalidNumbers = errors.New("draw: invalid numbers")

// Numbers is one set of six distinct red balls and one blue ball. Red is kept
// sorted ascending.
type Numbers struct {
	Red  [RedCount]int `json:"red" yaml:"red"`
	Blue int           `json:"blue" yaml:"blue"`
}

// NewNumbers sorts red and validates the result.
func NewNumbers(red [RedCount]int, blue int) (Numbers, error) {
	slices.Sort(red[:])
	n := Numbers{Red: red, Blue: blue}
	if err := n.Validate(); err != nil {
		return Numbers{}, err
	}
	return n, nil
}

// Validate checks ranges, ordering and distinctness.
func (n Numbers) Validate() error {
	for i, r := range n.Red {
		if r < 1 || r > RedMax {
			return fmt.Errorf("%w: red %d out of range", ErrInvalidNumbers, r)
		}
		if i > 0 && n.Red[i-1] >= r {
			return fmt.Errorf("%w: red balls must be distinct and ascending", ErrInvalidNumbers)
		}
	}
	if n.Blue < 1 || n.Blue > BlueMax {
		return fmt.Errorf("%w: blue %d out of range", ErrInvalidNumbers, n.Blue)
	}
	return nil
}

// String renders the provider's open-code form, e.g. "01,02,03,04,05,06+07".
func (n Numbers) String() string {
	var b strings.Builder
	for i, r := range n.Red {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%02d", r)
	}
	fmt.Fprintf(&b, "+%02d", n.Blue)
	return b.String()
}

// ParseOpenCode parses "r1,r2,r3,r4,r5,r6+b".
func ParseOpenCode(code string) (Numbers, error) {
	redPart, bluePart, ok := strings.Cut(strings.TrimSpace(code), "+")
	if !ok {
		return Numbers{}, fmt.Errorf("%w: %q has no blue ball", ErrInvalidNumbers, code)
	}
	fields := strings.Split(redPart, ",")
	if len(fields) != RedCount {
		return Numbers{}, fmt.Errorf("%w: %q has %d red balls", ErrInvalidNumbers, code, len(fields))
	}
	var red [RedCount]int
	for i, field := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return Numbers{}, fmt.Errorf("%w: %q: %v", ErrInvalidNumbers, code, err)
		}
		red[i] = v
	}
	blue, err := strconv.Atoi(strings.TrimSpace(bluePart))
	if err != nil {
		return Numbers{}, fmt.Errorf("%w: %q: %v", ErrInvalidNumbers, code, err)
	}
	return NewNumbers(red, blue)
}

// RedMatches counts shared red balls.
func (n Numbers) RedMatches(other Numbers) int {
	count := 0
	for _, r := range n.Red {
		if slices.Contains(other.Red[:], r) {
			count++
		}
	}
	return count
}
