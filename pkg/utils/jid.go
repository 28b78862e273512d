package utils

import (
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// ParseAnyJID parses user, group, community and newsletter JIDs. Bare
// phone numbers are promoted to user JIDs.
func ParseAnyJID(raw string) (types.JID, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.ContainsRune(trimmed, '@') {
		trimmed += "@" + types.DefaultUserServer
	}
	return types.ParseJID(trimmed)
}

// IsValidJID reports whether raw parses into a JID with a user part.
func IsValidJID(raw string) bool {
	jid, err := ParseAnyJID(raw)
	return err == nil && jid.User != ""
}

// IsGroupJID reports whether raw addresses a group or community. WhatsApp
// communities live on the group server, so both share this check.
func IsGroupJID(raw string) bool {
	jid, err := ParseAnyJID(raw)
	return err == nil && jid.Server == types.GroupServer
}
