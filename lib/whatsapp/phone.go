package whatsapp

import (
	"strings"
	"unicode"
)

// NormalizePhone reduces a JID or a human-typed number to its digits:
// "62812345:12@s.whatsapp.net" and "+62 812-345" both become "62812345".
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}
	s = StripDevicePart(s)

	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripDevicePart drops the ":<device>" suffix of a JID user part.
func StripDevicePart(user string) string {
	if i := strings.IndexByte(user, ':'); i >= 0 {
		return user[:i]
	}
	return user
}

// ValidPhone accepts E.164-sized digit strings.
func ValidPhone(digits string) bool {
	return len(digits) >= 8 && len(digits) <= 15
}
