package services

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const maxDisplayNameRunes = 32

// Identity is the verified user behind a connection.
type Identity struct {
	UserID      string
	DisplayName string
}

// NormalizeDisplayName returns an NFC, trimmed, length-capped name, falling back to userID.
func NormalizeDisplayName(name, userID string) string {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return userID
	}
	if utf8.RuneCountInString(name) > maxDisplayNameRunes {
		name = string([]rune(name)[:maxDisplayNameRunes])
	}
	return name
}
