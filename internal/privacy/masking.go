package privacy

import (
	"strings"

	"voicehook/internal/constants"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits.
// Example: "+14155551234" -> "+*******1234"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	keep := constants.DefaultPhoneMaskLength

	if strings.HasPrefix(phone, "+") {
		digits := phone[1:]
		if len(digits) <= keep {
			return "+" + strings.Repeat("*", len(digits))
		}
		return "+" + strings.Repeat("*", len(digits)-keep) + digits[len(digits)-keep:]
	}

	if len(phone) <= keep {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-keep) + phone[len(phone)-keep:]
}

// MaskAccountSID masks a provider account identifier, keeping the two-letter
// prefix and last 4 characters. Example: "AC0123456789abcdef" -> "AC************cdef"
func MaskAccountSID(sid string) string {
	if len(sid) <= 6 {
		return strings.Repeat("*", len(sid))
	}
	return sid[:2] + strings.Repeat("*", len(sid)-6) + sid[len(sid)-4:]
}
