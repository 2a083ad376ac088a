package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// CodeDigits is the length of an emailed verification code.
const CodeDigits = 6

var ten = big.NewInt(10)

// GenerateNumericCode returns a string of digits where each digit is drawn
// independently and uniformly from crypto/rand. Leading zeros are kept.
func GenerateNumericCode(digits int) (string, error) {
	if digits <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", digits)
	}

	var b strings.Builder
	b.Grow(digits)
	for range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate code digit: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// IsNumericCode reports whether s is exactly digits ASCII digits.
func IsNumericCode(s string, digits int) bool {
	if len(s) != digits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
