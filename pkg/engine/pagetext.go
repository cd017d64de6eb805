package engine

import (
	"strings"

	"golang.org/x/net/html"
)

// skippedElements never contribute visible text.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
	"template": true,
	"svg":      true,
	"iframe":   true,
}

// extractVisibleText flattens a page's HTML into the text a user would see,
// with whitespace collapsed. Used for indicator scans and body-text
// verification; parse failures degrade to the raw input so a malformed page
// still gets scanned.
func extractVisibleText(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return strings.TrimSpace(rawHTML)
	}

	var builder strings.Builder
	collectText(doc, &builder)
	return strings.Join(strings.Fields(builder.String()), " ")
}

func collectText(n *html.Node, builder *strings.Builder) {
	if n.Type == html.CommentNode {
		return
	}
	if n.Type == html.ElementNode && skippedElements[strings.ToLower(n.Data)] {
		return
	}
	if n.Type == html.TextNode {
		builder.WriteString(n.Data)
		builder.WriteByte(' ')
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, builder)
	}
}
