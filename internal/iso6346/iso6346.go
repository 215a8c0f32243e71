package iso6346

import (
	"strings"

	"github.com/pkg/errors"
)

// letterValues skips multiples of 11 (11, 22, 33).
var letterValues = map[byte]int{
	'A': 10, 'B': 12, 'C': 13, 'D': 14, 'E': 15, 'F': 16, 'G': 17, 'H': 18, 'I': 19,
	'J': 20, 'K': 21, 'L': 23, 'M': 24, 'N': 25, 'O': 26, 'P': 27, 'Q': 28, 'R': 29,
	'S': 30, 'T': 31, 'U': 32, 'V': 34, 'W': 35, 'X': 36, 'Y': 37, 'Z': 38,
}

const (
	prefixLen    = 10
	containerLen = 11
)

// ErrShortPrefix is returned by CheckDigit when the prefix is shorter than 10 characters.
var ErrShortPrefix = errors.New("prefix must have at least 10 characters")

// Normalize trims surrounding whitespace and uppercases the input.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// CheckDigit computes the ISO 6346 check digit of the first 10 characters.
func CheckDigit(prefix string) (int, error) {
	if len(prefix) < prefixLen {
		return 0, ErrShortPrefix
	}
	s := strings.ToUpper(prefix[:prefixLen])

	sum := 0
	for i := 0; i < prefixLen; i++ {
		v, ok := charValue(s[i])
		if !ok {
			return 0, errors.Errorf("invalid character %q at position %d", s[i], i)
		}
		sum += v << i
	}

	r := sum % 11
	if r == 10 {
		return 0, nil
	}
	return r, nil
}

// IsValid checks structure (owner code, category U/J/Z, serial) and the check digit.
func IsValid(container string) bool {
	s := strings.ToUpper(container)
	if len(s) != containerLen {
		return false
	}
	for i := 0; i < 4; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	switch s[3] {
	case 'U', 'J', 'Z':
	default:
		return false
	}
	for i := 4; i < containerLen; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	want, err := CheckDigit(s[:prefixLen])
	if err != nil {
		return false
	}
	return int(s[prefixLen]-'0') == want
}

// Validator applies IsValid unless SkipCheck is set. Skipping still rejects
// empty and non-alphanumeric input.
type Validator struct {
	SkipCheck bool
}

func (v Validator) Validate(container string) bool {
	if !v.SkipCheck {
		return IsValid(container)
	}
	if container == "" {
		return false
	}
	for i := 0; i < len(container); i++ {
		c := container[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}

func charValue(c byte) (int, bool) {
	if c >= '0' && c <= '9' {
		return int(c - '0'), true
	}
	v, ok := letterValues[c]
	return v, ok
}
