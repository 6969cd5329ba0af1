package brdoc

// CNS prefix classes. 1/2 are definitive cards, 7/8/9 provisional.
func cnsPrefixValid(first byte) bool {
	switch first {
	case '1', '2', '7', '8', '9':
		return true
	}
	return false
}

// ValidateCNS checks a 15-digit CNS number: prefix digit in {1,2,7,8,9} and
// a weighted modulo-11 checksum (weights 15 down to 1) divisible by 11.
// The same formula is applied to definitive and provisional numbers.
func ValidateCNS(value string) error {
	digits := StripNonDigits(value)
	if len(digits) != 15 {
		return ErrInvalidLength
	}
	if !cnsPrefixValid(digits[0]) {
		return ErrInvalidPrefix
	}

	sum := 0
	for i := 0; i < 15; i++ {
		sum += int(digits[i]-'0') * (15 - i)
	}
	if sum%11 != 0 {
		return ErrInvalidCheckDigit
	}
	return nil
}
