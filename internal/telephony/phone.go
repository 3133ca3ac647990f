package telephony

import (
	"errors"
	"strings"
)

// ErrInvalidPhone is returned when a number has no digits to dial.
var ErrInvalidPhone = errors.New("telephony: invalid phone number")

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LocalNumber strips a leading +<countryCode> and every non-digit, giving the
// form patient records are stored under ("+91 98765 43210" -> "9876543210").
func LocalNumber(raw, countryCode string) string {
	raw = strings.TrimSpace(raw)
	if countryCode != "" {
		raw = strings.TrimPrefix(raw, "+"+countryCode)
	}
	return digitsOnly(raw)
}

// ToE164 prepares a caller-entered number for dialing. Spaces and dashes are
// removed; numbers without a leading + get one, prefixed with countryCode
// unless they already start with it and are long enough to include it.
func ToE164(raw, countryCode string) (string, error) {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	if strings.HasPrefix(cleaned, "+") {
		digits := digitsOnly(cleaned)
		if digits == "" {
			return "", ErrInvalidPhone
		}
		return "+" + digits, nil
	}
	digits := digitsOnly(cleaned)
	if digits == "" {
		return "", ErrInvalidPhone
	}
	if countryCode != "" && strings.HasPrefix(digits, countryCode) && len(digits) > 10 {
		return "+" + digits, nil
	}
	return "+" + countryCode + digits, nil
}
