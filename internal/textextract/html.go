// Package textextract turns fetched HTML and PDF payloads into the plain
// text handed to the classification oracle.
package textextract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// skipElements are subtrees carrying chrome rather than notice content.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"iframe":   true,
	"svg":      true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "li": true, "blockquote": true,
	"article": true, "section": true, "main": true, "pre": true,
	"td": true, "th": true, "dt": true, "dd": true, "tr": true,
}

// HTML extracts the readable text of an HTML document. Script, style and
// navigation subtrees are skipped, block boundaries become newlines, and
// runs of blank lines collapse.
func HTML(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var sb strings.Builder
	walkText(doc, &sb)
	return cleanupText(sb.String()), nil
}

// Title returns the document's <title> text, or "" when absent.
func Title(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return findTitle(doc)
}

func walkText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && skipElements[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			if n.Parent != nil && blockElements[n.Parent.Data] {
				sb.WriteByte('\n')
				sb.WriteString(text)
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
				sb.WriteString(text)
				sb.WriteByte(' ')
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, sb)
	}
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			return strings.TrimSpace(n.FirstChild.Data)
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}

func cleanupText(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// Truncate cuts s to at most limit bytes without splitting a UTF-8
// sequence. Non-positive limits leave s unchanged.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
