// Package extract pulls contact points (emails, Telegram handles, links) out of
// free text, HTML markup and, optionally, the pages those links point to.
package extract

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobrelay/internal/model"
)

var (
	emailRegex = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	// A free-text handle must start the text or follow whitespace, otherwise
	// the "@co" in "hr@co.com" would match.
	handleRegex = regexp.MustCompile(`(?:^|\s)@(\w{3,32})\b`)

	linkRegex = regexp.MustCompile(`https?://[^\s()\[\]{}<>"']+`)

	telegramLinkRegex = regexp.MustCompile(`(?i)(?:^|[/.])(?:t|telegram)\.me/(\w{3,32})\b`)

	markupRegex = regexp.MustCompile(`(?i)<\s*(a|p|div|br|span|b|i|html|body|li)[\s>/]`)
)

// t.me paths that are Telegram features rather than user names.
var reservedTelegramPaths = map[string]bool{
	"joinchat":    true,
	"addstickers": true,
	"addlist":     true,
	"share":       true,
	"proxy":       true,
	"socks":       true,
	"boost":       true,
}

const fetchConcurrency = 4

// Extractor finds contacts in message text.
type Extractor struct {
	fetcher  model.PageFetcher // nil disables linked-page scanning
	maxLinks int
	logger   *slog.Logger
}

// NewExtractor returns an extractor. When fetcher is non-nil, up to maxLinks
// discovered links are fetched and their pages scanned as well.
func NewExtractor(fetcher model.PageFetcher, maxLinks int, logger *slog.Logger) *Extractor {
	return &Extractor{
		fetcher:  fetcher,
		maxLinks: maxLinks,
		logger:   logger,
	}
}

// Extract returns the deduplicated contacts found in text and its linked pages.
// Page fetch failures are logged and skipped; they never fail extraction.
func (e *Extractor) Extract(ctx context.Context, text string) model.Contacts {
	c := newCollector()
	c.scan(text, true)

	if e.fetcher != nil && len(c.links) > 0 {
		e.scanLinkedPages(ctx, c)
	}

	e.logger.Debug("contacts extracted",
		"emails", c.emails,
		"handles", c.handles,
		"links", c.links,
	)
	return c.contacts()
}

func (e *Extractor) scanLinkedPages(ctx context.Context, c *collector) {
	links := c.links
	if e.maxLinks > 0 && len(links) > e.maxLinks {
		links = links[:e.maxLinks]
	}

	pages := make([]string, len(links))
	var g errgroup.Group
	g.SetLimit(fetchConcurrency)
	for i, link := range links {
		g.Go(func() error {
			body, err := e.fetcher.Fetch(ctx, link)
			if err != nil {
				e.logger.Warn("linked page fetch failed, skipping", "url", link, "error", err)
				return nil
			}
			pages[i] = body
			return nil
		})
	}
	_ = g.Wait()

	// Merge in link order so output does not depend on fetch timing.
	for _, body := range pages {
		if body != "" {
			c.scanMarkup(body, false)
		}
	}
}

// collector accumulates contacts in discovery order without duplicates.
type collector struct {
	emails, handles, links          []string
	seenEmail, seenHandle, seenLink map[string]bool
}

func newCollector() *collector {
	return &collector{
		seenEmail:  make(map[string]bool),
		seenHandle: make(map[string]bool),
		seenLink:   make(map[string]bool),
	}
}

func (c *collector) contacts() model.Contacts {
	return model.Contacts{
		Emails:  c.emails,
		Handles: c.handles,
		Links:   c.links,
	}
}

func (c *collector) addEmail(email string) {
	key := strings.ToLower(email)
	if c.seenEmail[key] {
		return
	}
	c.seenEmail[key] = true
	c.emails = append(c.emails, email)
}

func (c *collector) addHandle(name string) {
	name = strings.TrimPrefix(name, "@")
	if reservedTelegramPaths[strings.ToLower(name)] {
		return
	}
	handle := "@" + name
	key := strings.ToLower(handle)
	if c.seenHandle[key] {
		return
	}
	c.seenHandle[key] = true
	c.handles = append(c.handles, handle)
}

func (c *collector) addLink(link string) {
	if c.seenLink[link] {
		return
	}
	c.seenLink[link] = true
	c.links = append(c.links, link)
}

// addTelegramLink adds the handle part of a t.me / telegram.me link, if any.
func (c *collector) addTelegramLink(link string) {
	if m := telegramLinkRegex.FindStringSubmatch(link); m != nil {
		c.addHandle(m[1])
	}
}

func (c *collector) scan(text string, keepLinks bool) {
	if looksLikeMarkup(text) {
		c.scanMarkup(text, keepLinks)
		return
	}
	c.scanPlain(text, keepLinks)
}

func (c *collector) scanPlain(text string, keepLinks bool) {
	for _, email := range emailRegex.FindAllString(text, -1) {
		c.addEmail(email)
	}
	for _, m := range handleRegex.FindAllStringSubmatch(text, -1) {
		c.addHandle(m[1])
	}
	for _, link := range linkRegex.FindAllString(text, -1) {
		link = trimLink(link)
		if keepLinks {
			c.addLink(link)
		}
		c.addTelegramLink(link)
	}
}

func (c *collector) scanMarkup(markup string, keepLinks bool) {
	doc, err := parseMarkup(markup)
	if err != nil {
		c.scanPlain(markup, keepLinks)
		return
	}

	c.scanPlain(doc.text, keepLinks)
	for _, href := range doc.hrefs {
		switch {
		case strings.HasPrefix(strings.ToLower(href), "mailto:"):
			addr := href[len("mailto:"):]
			if i := strings.IndexByte(addr, '?'); i >= 0 {
				addr = addr[:i]
			}
			if emailRegex.MatchString(addr) {
				c.addEmail(emailRegex.FindString(addr))
			}
		default:
			c.addTelegramLink(href)
			if keepLinks && linkRegex.MatchString(href) {
				c.addLink(trimLink(href))
			}
		}
	}
}

func looksLikeMarkup(text string) bool {
	return markupRegex.MatchString(text)
}

// trimLink drops sentence punctuation glued to the end of a link.
func trimLink(link string) string {
	return strings.TrimRight(link, ".,;:!?")
}
