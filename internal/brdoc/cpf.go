// Package brdoc validates the Brazilian national identifiers carried in
// HL7 patient identifier lists: CPF (individual taxpayer id) and CNS
// (national health card).
package brdoc

import (
	"errors"
	"strings"
)

var (
	ErrInvalidLength     = errors.New("invalid length")
	ErrInvalidPrefix     = errors.New("invalid prefix digit")
	ErrInvalidCheckDigit = errors.New("invalid check digit")
)

// StripNonDigits removes every non-digit rune, tolerating the formatted
// shapes senders use (000.000.000-00 etc).
func StripNonDigits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateCPF checks an 11-digit CPF: strips punctuation, rejects repeated
// digit sequences (000..., 111... pass the checksum but are not issued), and
// verifies the two weighted modulo-11 check digits.
func ValidateCPF(value string) error {
	digits := StripNonDigits(value)
	if len(digits) != 11 {
		return ErrInvalidLength
	}

	allEqual := true
	for i := 1; i < 11; i++ {
		if digits[i] != digits[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		return ErrInvalidCheckDigit
	}

	if cpfCheckDigit(digits, 9) != int(digits[9]-'0') {
		return ErrInvalidCheckDigit
	}
	if cpfCheckDigit(digits, 10) != int(digits[10]-'0') {
		return ErrInvalidCheckDigit
	}
	return nil
}

// cpfCheckDigit computes the check digit over the first n digits with
// weights n+1 down to 2.
func cpfCheckDigit(digits string, n int) int {
	sum := 0
	for i := 0; i < n; i++ {
		sum += int(digits[i]-'0') * (n + 1 - i)
	}
	rest := (sum * 10) % 11
	if rest == 10 {
		return 0
	}
	return rest
}
