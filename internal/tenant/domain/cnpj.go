package domain

import (
	"fmt"
	"strings"
)

// NormalizeCNPJ validates a CNPJ, with or without punctuation, and returns it
// in the canonical 00.000.000/0000-00 form.
func NormalizeCNPJ(raw string) (string, error) {
	digits := make([]int, 0, 14)
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == '.' || r == '/' || r == '-' || r == ' ':
		default:
			return "", ErrInvalidTaxID
		}
	}
	if len(digits) != 14 || allSame(digits) {
		return "", ErrInvalidTaxID
	}
	if checkDigit(digits[:12], []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}) != digits[12] {
		return "", ErrInvalidTaxID
	}
	if checkDigit(digits[:13], []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}) != digits[13] {
		return "", ErrInvalidTaxID
	}

	var b strings.Builder
	for i, d := range digits {
		switch i {
		case 2, 5:
			b.WriteByte('.')
		case 8:
			b.WriteByte('/')
		case 12:
			b.WriteByte('-')
		}
		fmt.Fprintf(&b, "%d", d)
	}
	return b.String(), nil
}

func checkDigit(digits, weights []int) int {
	sum := 0
	for i, d := range digits {
		sum += d * weights[i]
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}

func allSame(digits []int) bool {
	for _, d := range digits[1:] {
		if d != digits[0] {
			return false
		}
	}
	return true
}
