package provider

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// CleanupHints describes the provider-specific decorations to strip from an
// answer's HTML before converting it to text.
type CleanupHints struct {
	CodeBlockSelector string
	CodeTextSelector  string
	DropHiddenNodes   bool
}

// CleanReply converts an answer bubble's HTML to plain text. Code blocks
// lose their toolbar decorations and are re-fenced with ``` markers so the
// result round-trips through markdown consumers; repeated blank lines are
// collapsed.
func CleanReply(rawHTML string, hints CleanupHints) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parsing reply html: %w", err)
	}

	if hints.DropHiddenNodes {
		doc.Find("div[style]").Each(func(_ int, s *goquery.Selection) {
			if style, ok := s.Attr("style"); ok && strings.Contains(style, "display: none;") {
				s.Empty()
			}
		})
	}

	if hints.CodeBlockSelector != "" {
		doc.Find(hints.CodeBlockSelector).Each(func(_ int, block *goquery.Selection) {
			var codes []string
			sel := hints.CodeTextSelector
			if sel == "" {
				sel = "code"
			}
			block.Find(sel).Each(func(_ int, code *goquery.Selection) {
				codes = append(codes, strings.TrimSpace(code.Text()))
			})
			if len(codes) == 0 {
				return
			}
			block.SetHtml("")
			block.SetText("\n```\n" + strings.Join(codes, "\n") + "\n```\n")
		})
	}

	var sb strings.Builder
	for _, node := range doc.Selection.Nodes {
		renderText(&sb, node)
	}

	text := strings.TrimSpace(sb.String())
	for strings.Contains(text, "\n\n") {
		text = strings.ReplaceAll(text, "\n\n", "\n")
	}
	return text, nil
}

// blockTags are elements whose boundaries become line breaks in the
// rendered text, mirroring how the page displays them.
var blockTags = map[string]bool{
	"div": true, "p": true, "li": true, "ul": true, "ol": true,
	"pre": true, "tr": true, "table": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "br": true,
}

// renderText walks the node tree collecting text, inserting newlines at
// block element boundaries.
func renderText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		trimmed := strings.TrimSpace(n.Data)
		if trimmed != "" {
			sb.WriteString(trimmed)
		} else if strings.Contains(n.Data, "\n") {
			sb.WriteString("\n")
		}
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
		if blockTags[n.Data] {
			sb.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(sb, c)
	}
	if n.Type == html.ElementNode && blockTags[n.Data] {
		sb.WriteString("\n")
	}
}
