// Package isbn implements the ISBN-13 check digit rule shared by scan
// extraction and catalog admission.
package isbn

import "strings"

// Length is the number of digits in an ISBN-13.
const Length = 13

// Validate reports whether s is exactly 13 ASCII digits whose last digit
// matches the weighted checksum of the first twelve.
func Validate(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < Length; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return CheckDigit(s[:Length-1]) == s[Length-1]
}

// CheckDigit returns the expected 13th digit for a 12-digit prefix.
// Weights alternate 1 and 3 starting with 1 at position 0. The prefix must
// already be known to be 12 ASCII digits.
func CheckDigit(prefix string) byte {
	sum := 0
	for i := 0; i < len(prefix); i++ {
		d := int(prefix[i] - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return byte('0' + (10-sum%10)%10)
}

// Clean removes hyphen and whitespace separators.
func Clean(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '\t', '\n', '\r', ' ', '　':
			return -1
		}
		return r
	}, s)
}
