package htmlutil

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func collectTextNodes(node *html.Node, out *[]string) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		*out = append(*out, node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectTextNodes(child, out)
	}
}

// JoinedText joins every descendant text node of the selection with a single
// space and trims the result, so "<td><a>SCOM</a><span>x</span></td>" reads
// as "SCOM x" instead of "SCOMx".
func JoinedText(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		collectTextNodes(n, &parts)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
