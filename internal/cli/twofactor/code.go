package twofactor

import (
	"errors"
	"strings"
)

// CodeLength is the number of digits in an authenticator code
const CodeLength = 6

// ErrInvalidCode is returned before any network call when a code is not
// exactly six digits
var ErrInvalidCode = errors.New("enter the 6-digit code from your authenticator app")

// SanitizeCode strips everything but digits and truncates to CodeLength
func SanitizeCode(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == CodeLength {
				break
			}
		}
	}
	return b.String()
}

// ValidateCode accepts only exactly CodeLength ASCII digits
func ValidateCode(code string) error {
	if len(code) != CodeLength {
		return ErrInvalidCode
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return ErrInvalidCode
		}
	}
	return nil
}

// CodeInput holds a code being typed. It is cleared after a rejected
// submission so the user re-enters it.
type CodeInput struct {
	value string
}

// NewCodeInput returns an input pre-filled with raw (sanitized)
func NewCodeInput(raw string) *CodeInput {
	in := &CodeInput{}
	in.Set(raw)
	return in
}

// Set replaces the input with the sanitized form of raw
func (in *CodeInput) Set(raw string) {
	in.value = SanitizeCode(raw)
}

// Value returns the sanitized digits. A nil input is empty.
func (in *CodeInput) Value() string {
	if in == nil {
		return ""
	}
	return in.value
}

// Valid reports whether the input can be submitted
func (in *CodeInput) Valid() bool {
	return ValidateCode(in.Value()) == nil
}

// Clear empties the input
func (in *CodeInput) Clear() {
	if in != nil {
		in.value = ""
	}
}
