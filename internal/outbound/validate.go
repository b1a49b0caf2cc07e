package outbound

import "strings"

// NormalizePhone strips all non-digit characters.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate checks a send request's inputs and returns the normalized phone
// number. Length bounds follow E.164: 10 to 15 digits after stripping.
func Validate(phone, body string) (string, *ValidationError) {
	digits := NormalizePhone(phone)
	if digits == "" {
		return "", &ValidationError{Code: EmptyPhone, Message: "Phone number is required."}
	}
	if len(digits) < 10 {
		return "", &ValidationError{Code: TooShort, Message: "Phone number is too short. Include the country code (at least 10 digits)."}
	}
	if len(digits) > 15 {
		return "", &ValidationError{Code: TooLong, Message: "Phone number is too long (at most 15 digits)."}
	}
	if strings.TrimSpace(body) == "" {
		return "", &ValidationError{Code: EmptyMessage, Message: "Message cannot be empty."}
	}
	return digits, nil
}
