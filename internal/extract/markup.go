package extract

import (
	"strings"

	"golang.org/x/net/html"
)

type markupDoc struct {
	text  string   // visible text, nodes joined by spaces
	hrefs []string // every <a href> in document order
}

func parseMarkup(markup string) (markupDoc, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return markupDoc{}, err
	}

	var doc markupDoc
	var text strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
			if n.Data == "a" {
				for _, attr := range n.Attr {
					if attr.Key == "href" && attr.Val != "" {
						doc.hrefs = append(doc.hrefs, strings.TrimSpace(attr.Val))
					}
				}
			}
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				text.WriteString(t)
				text.WriteByte(' ')
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	doc.text = text.String()
	return doc, nil
}
