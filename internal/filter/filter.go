package filter

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/amishk599/jobrelay/internal/model"
)

// ContactFilter drops blocklisted email domains and handles and removes
// duplicates. Matching is case-insensitive. Links pass through untouched.
type ContactFilter struct {
	blockedHandles map[string]bool
	blockedDomains []string
	logger         *slog.Logger
}

// NewContactFilter returns a filter for the given blocklists. Handles may be
// configured with or without the leading "@".
func NewContactFilter(blockedHandles []string, blockedDomains []string, logger *slog.Logger) *ContactFilter {
	handles := make(map[string]bool, len(blockedHandles))
	for _, h := range blockedHandles {
		handles[canonicalHandle(h)] = true
	}
	domains := make([]string, 0, len(blockedDomains))
	for _, d := range blockedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, strings.TrimPrefix(d, "@"))
		}
	}
	return &ContactFilter{
		blockedHandles: handles,
		blockedDomains: domains,
		logger:         logger,
	}
}

// Apply returns the filtered contact set.
func (f *ContactFilter) Apply(c model.Contacts) model.Contacts {
	out := model.Contacts{Links: c.Links}

	seenEmails := make(map[string]bool)
	for _, email := range c.Emails {
		email = strings.TrimSpace(email)
		key := strings.ToLower(email)
		if key == "" || seenEmails[key] {
			continue
		}
		seenEmails[key] = true
		if f.domainBlocked(key) {
			f.logger.Debug("contact filtered", "kind", "email", "contact", email, "reason", "blocked_domain")
			continue
		}
		out.Emails = append(out.Emails, email)
	}

	seenHandles := make(map[string]bool)
	for _, handle := range c.Handles {
		handle = strings.TrimSpace(handle)
		if handle == "" || handle == "@" {
			continue
		}
		if !strings.HasPrefix(handle, "@") {
			handle = "@" + handle
		}
		key := canonicalHandle(handle)
		if seenHandles[key] {
			continue
		}
		seenHandles[key] = true
		if f.blockedHandles[key] {
			f.logger.Debug("contact filtered", "kind", "handle", "contact", handle, "reason", "blocklisted")
			continue
		}
		out.Handles = append(out.Handles, handle)
	}

	return out
}

// domainBlocked reports whether the part after the last "@" equals a blocked
// domain or is a subdomain of one. An entry without a dot, such as "noreply",
// blocks any domain that has it as a label. The local part is never matched.
func (f *ContactFilter) domainBlocked(email string) bool {
	domain := email[strings.LastIndex(email, "@")+1:]
	labels := strings.Split(domain, ".")
	for _, blocked := range f.blockedDomains {
		if !strings.Contains(blocked, ".") {
			if slices.Contains(labels, blocked) {
				return true
			}
			continue
		}
		if domain == blocked || strings.HasSuffix(domain, "."+blocked) {
			return true
		}
	}
	return false
}

func canonicalHandle(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if !strings.HasPrefix(h, "@") {
		h = "@" + h
	}
	return h
}
