package util

import (
	"strings"

	"golang.org/x/net/html"
)

// ParseLinks finds <a href> values ending with any of suffixes (case-insensitive).
// It performs a depth-first search of the node tree.
func ParseLinks(n *html.Node, suffixes ...string) []string {
	var out []string
	var walk func(*html.Node)

	walk = func(nd *html.Node) {
		if nd.Type == html.ElementNode && nd.Data == "a" {
			for _, a := range nd.Attr {
				if a.Key != "href" {
					continue
				}
				if a.Val != "/" && hasAnySuffix(strings.ToLower(a.Val), suffixes) {
					out = append(out, a.Val)
				}
				break
			}
		}
		for c := nd.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return out
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, strings.ToLower(suf)) {
			return true
		}
	}
	return false
}
