package logger

import "strings"

// MaskRecipient hides most of an email address or phone number so recipients
// can be logged. Email keeps the first two and last two characters of the
// local part; anything else keeps its last four characters.
func MaskRecipient(recipient string) string {
	if recipient == "" {
		return ""
	}
	if at := strings.LastIndex(recipient, "@"); at > 0 {
		return maskKeep(recipient[:at], 2, 2) + recipient[at:]
	}
	return maskKeep(recipient, 0, 4)
}

func maskKeep(s string, head, tail int) string {
	r := []rune(s)
	if len(r) <= head+tail {
		return strings.Repeat("*", len(r))
	}
	return string(r[:head]) + strings.Repeat("*", len(r)-head-tail) + string(r[len(r)-tail:])
}
