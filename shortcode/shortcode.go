// Package shortcode maps the 8-hex-digit race codes players type in to the
// range of race UUIDs they may refer to.
package shortcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	Length = 8
	suffix = "-0000-0000-0000-000000000000"
)

var ErrInvalidCode = errors.New("race code must be 8 hexadecimal characters")

// Bounds is the half-open interval [Lower, Upper) of UUIDs matching a code.
// Upper is empty when the code is ffffffff: no UUID sorts above it.
type Bounds struct {
	Lower string
	Upper string
}

func (b Bounds) Unbounded() bool {
	return b.Upper == ""
}

// Normalize trims and lowercases user input.
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// IsShortCode reports whether s (after normalizing) is a well-formed code.
func IsShortCode(s string) bool {
	s = Normalize(s)
	if len(s) != Length {
		return false
	}
	_, err := strconv.ParseUint(s, 16, 32)
	return err == nil
}

// Of returns the short code of a race id.
func Of(id uuid.UUID) string {
	return id.String()[:Length]
}

// Range derives the UUID interval matched by code.
func Range(code string) (Bounds, error) {
	code = Normalize(code)
	if len(code) != Length {
		return Bounds{}, ErrInvalidCode
	}
	n, err := strconv.ParseUint(code, 16, 32)
	if err != nil {
		return Bounds{}, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}

	b := Bounds{Lower: code + suffix}
	if n == 0xffffffff {
		return b, nil
	}
	b.Upper = fmt.Sprintf("%08x", n+1) + suffix
	return b, nil
}
