package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" becomes "jo***@example.com". Local parts of two
// characters or fewer are fully masked.
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone masks a phone number, keeping only the last two digits.
// "+4915712345678" becomes "************78".
func RedactPhone(phone string) string {
	if len(phone) <= 2 {
		return "***"
	}
	return strings.Repeat("*", len(phone)-2) + phone[len(phone)-2:]
}
