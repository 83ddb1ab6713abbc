package clip

import "strings"

const (
	otpMinDigits = 4
	otpMaxDigits = 8
)

// IsLikelyOTP reports whether text looks like a one-time passcode: after
// trimming surrounding whitespace, 4 to 8 ASCII decimal digits and nothing
// else. Numeric PINs and phone fragments match too.
func IsLikelyOTP(text string) bool {
	s := strings.TrimSpace(text)
	if len(s) < otpMinDigits || len(s) > otpMaxDigits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ClassifyOTP applies IsLikelyOTP to text content. Images are never OTPs.
func ClassifyOTP(c Content) bool {
	t, ok := c.(Text)
	return ok && IsLikelyOTP(string(t))
}
