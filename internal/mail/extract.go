package mail

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// alertNamePattern matches TNS-style transient designations: a
// four-digit year followed by two or three lowercase letters (e.g.
// "2024abc"). The (?i) flag makes the pattern itself case-insensitive;
// the extracted name is always lower-cased to match TNS's own convention.
var alertNamePattern = regexp.MustCompile(`(?i)\b(20\d{2}[a-z]{2,3})\b`)

// ExtractAlertNames scrapes TNS object names out of a notification
// email body. It first walks the HTML anchor tags (TNS notices link
// each object name to its report page) and falls back to a plain
// regex sweep of the full text when no anchors match or the body isn't
// HTML at all.
func ExtractAlertNames(body []byte) []string {
	names := extractFromAnchors(body)
	if len(names) > 0 {
		return names
	}
	return extractFromText(body)
}

func extractFromAnchors(body []byte) []string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var names []string
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			text := anchorText(n)
			if m := alertNamePattern.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
				name := strings.ToLower(m[1])
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return names
}

func anchorText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func extractFromText(body []byte) []string {
	matches := alertNamePattern.FindAllStringSubmatch(string(body), -1)
	if len(matches) == 0 {
		return nil
	}

	var names []string
	seen := make(map[string]bool)
	for _, m := range matches {
		name := strings.ToLower(m[1])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
