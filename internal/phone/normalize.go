// Package phone normalizes loosely formatted phone numbers to E.164.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidPhoneNumber = errors.New("invalid phone number")

type Normalizer struct {
	// DefaultCountryCode replaces a leading national 0, e.g. "+972".
	DefaultCountryCode string
}

func NewNormalizer(defaultCountryCode string) Normalizer {
	return Normalizer{DefaultCountryCode: defaultCountryCode}
}

func (n Normalizer) Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPhoneNumber)
	}

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '(', ')', '.':
			return -1
		}
		return r
	}, trimmed)

	if strings.HasPrefix(cleaned, "00") {
		cleaned = "+" + cleaned[2:]
	}

	if strings.HasPrefix(cleaned, "0") && n.DefaultCountryCode != "" {
		cleaned = "+" + strings.TrimPrefix(n.DefaultCountryCode, "+") + cleaned[1:]
	}

	if !strings.HasPrefix(cleaned, "+") {
		return "", fmt.Errorf("%w: %q has no country code", ErrInvalidPhoneNumber, raw)
	}

	digits := cleaned[1:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q contains non-digit characters", ErrInvalidPhoneNumber, raw)
		}
	}
	if len(digits) < 7 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %q has %d digits, want 7-15", ErrInvalidPhoneNumber, raw, len(digits))
	}

	return cleaned, nil
}
