package services

import (
	"strings"
	"unicode"

	"eventlottery/internal/domain"
)

// Defaults used when a request carries no usable title or message. These are
// part of the contract with the mobile clients.
const (
	defaultMessageBody = "You have an update regarding an event."
	defaultTitle       = "Event Update"
)

// firstNameOf derives a display first name from a profile snapshot.
// Priority: explicit first name, then first token of the full name, then
// first token of the generic display name. Empty when none is usable.
func firstNameOf(u *domain.UserProfile) string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	if full := strings.TrimSpace(u.FullName); full != "" {
		if tok := strings.Fields(full); len(tok) > 0 {
			return tok[0]
		}
	}
	if display := strings.TrimSpace(u.DisplayName); display != "" {
		if tok := strings.Fields(display); len(tok) > 0 {
			return tok[0]
		}
	}
	return ""
}

// personalizeMessage prefixes "Hey {Name}, " when a first name is available.
// An empty message falls back to the generic default either way.
func personalizeMessage(message, firstName string) string {
	if message == "" {
		message = defaultMessageBody
	}
	if firstName == "" {
		return message
	}
	return "Hey " + capitalize(firstName) + ", " + message
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
