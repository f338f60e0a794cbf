package model

import "strings"

var contactPrefixes = []string{
	"mailto:",
	"https://",
	"http://",
	"t.me/",
	"telegram.me/",
	"@",
}

// NormalizeContact lower-cases a contact and strips any scheme, t.me prefix and
// leading "@", so "@HR_Team", "https://t.me/hr_team" and "hr_team" collapse to
// the same ledger key.
func NormalizeContact(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range contactPrefixes {
		s = strings.TrimPrefix(s, p)
	}
	return strings.TrimSuffix(s, "/")
}
