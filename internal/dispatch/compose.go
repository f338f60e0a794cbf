package dispatch

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/amishk599/jobrelay/internal/model"
)

const (
	markerConfirmed = "✅ Confirmed"
	markerSkipped   = "⏭ Skipped"
)

// NotificationActions is the keyboard attached to a new operator notification.
func NotificationActions(fp string) [][]model.Action {
	return [][]model.Action{
		{
			{Kind: model.ActionConfirm, Label: "✅ Confirm", Fingerprint: fp},
			{Kind: model.ActionSkip, Label: "⏭ Skip", Fingerprint: fp},
		},
		{
			{Kind: model.ActionFullText, Label: "📄 Full text", Fingerprint: fp},
		},
	}
}

func fullTextOnly(fp string) [][]model.Action {
	return [][]model.Action{{{Kind: model.ActionFullText, Label: "📄 Full text", Fingerprint: fp}}}
}

// composeSummary renders the operator notification as plain text.
func (c *Coordinator) composeSummary(meta model.SourceMeta, text string, score float64, res Result) string {
	var b strings.Builder

	b.WriteString("🔔 New job opportunity\n")
	fmt.Fprintf(&b, "Score: %.2f\n", score)
	if meta.Channel != "" {
		fmt.Fprintf(&b, "Source: %s\n", meta.Channel)
	}
	b.WriteString("\n")
	b.WriteString(Excerpt(text, c.cfg.ExcerptRunes))
	b.WriteString("\n\n")

	all := res.Contacts.Sendable()
	if len(all) == 0 {
		b.WriteString("Contacts: none found\n")
	} else {
		b.WriteString("Contacts:\n")
		for i, ct := range all {
			if i == c.cfg.ContactsShown {
				fmt.Fprintf(&b, "  (+%d more)\n", len(all)-i)
				break
			}
			fmt.Fprintf(&b, "  • %s\n", ct.Address)
		}
	}

	fmt.Fprintf(&b, "\nOutreach: sent %d, skipped %d (cooldown), failed %d\n",
		res.SentCount, len(res.Skipped), len(res.Failures))

	if len(res.Failures) > 0 {
		b.WriteString("Failures:\n")
		for _, line := range groupFailures(res.Failures, c.cfg.FailuresShown) {
			b.WriteString("  " + line + "\n")
		}
	}

	if n := len(res.LedgerErrors); n > 0 {
		fmt.Fprintf(&b, "\n⚠️ %d send(s) could not be recorded; cooldown for them is held in memory only.\n", n)
	}

	// Never exceed the transport limit, or the operator sees nothing at all.
	return Excerpt(strings.TrimRight(b.String(), "\n"), c.cfg.MaxMessageRunes)
}

// groupFailures renders one line per transport, e.g.
// "telegram: @a (permanent), @b (rate_limited)", listing at most limit
// contacts followed by a "(+N more)" line.
func groupFailures(failures []Failure, limit int) []string {
	sorted := make([]Failure, len(failures))
	copy(sorted, failures)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Contact.Kind != sorted[j].Contact.Kind {
			return sorted[i].Contact.Kind < sorted[j].Contact.Kind
		}
		return sorted[i].Contact.Address < sorted[j].Contact.Address
	})
	hidden := 0
	if limit > 0 && len(sorted) > limit {
		hidden = len(sorted) - limit
		sorted = sorted[:limit]
	}

	byKind := make(map[model.ContactKind][]string)
	for _, f := range sorted {
		byKind[f.Contact.Kind] = append(byKind[f.Contact.Kind], fmt.Sprintf("%s (%s)", f.Contact.Address, f.Kind))
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	lines := make([]string, 0, len(kinds))
	for _, k := range kinds {
		entries := byKind[model.ContactKind(k)]
		sort.Strings(entries)
		lines = append(lines, k+": "+strings.Join(entries, ", "))
	}
	if hidden > 0 {
		lines = append(lines, fmt.Sprintf("(+%d more)", hidden))
	}
	return lines
}

// resolvedText appends the decision marker to the notification text.
func resolvedText(original string, status model.NotificationStatus) string {
	marker := markerSkipped
	if status == model.StatusConfirmed {
		marker = markerConfirmed
	}
	return strings.TrimRight(original, "\n") + "\n\n" + marker
}

// Excerpt returns at most n runes of text, marking truncation with "…".
func Excerpt(text string, n int) string {
	text = strings.TrimSpace(text)
	if n < 1 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}

// Chunk splits text into pieces of at most limit runes, preferring to break at
// a newline and then at a space in the second half of each piece.
func Chunk(text string, limit int) []string {
	if limit <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	var chunks []string
	for len(runes) > limit {
		cut := limit
		if i := lastIndex(runes[:limit], '\n'); i >= limit/2 {
			cut = i + 1
		} else if i := lastIndex(runes[:limit], ' '); i >= limit/2 {
			cut = i + 1
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 || len(chunks) == 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func lastIndex(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
