package normalize

import (
	"strings"

	"golang.org/x/net/html"
)

// HTMLText returns the visible text of an HTML fragment with
// whitespace collapsed. Script and style bodies are skipped. Used for
// character counting and search indexing, so the output must be
// stable for identical input.
func HTMLText(fragment string) string {
	root, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return strings.Join(strings.Fields(b.String()), " ")
}
