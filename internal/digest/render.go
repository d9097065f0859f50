package digest

import (
	"fmt"
	"io"
	"strings"
)

// Render writes res as a markdown document.
func Render(w io.Writer, res *Result) error {
	var b strings.Builder

	b.WriteString("# Newsletter digest\n\n")
	fmt.Fprintf(&b, "%d articles from %d emails.\n", len(res.Articles), res.Emails)

	if res.Topics != "" {
		b.WriteString("\n## Topics\n\n")
		b.WriteString(res.Topics)
		b.WriteString("\n")
	}
	if res.Summary != "" {
		b.WriteString("\n## Summary\n\n")
		b.WriteString(res.Summary)
		b.WriteString("\n")
	}
	if res.Topics == "" && res.Summary == "" && len(res.Articles) > 0 {
		b.WriteString("\n## Articles\n\n")
		for _, a := range res.Articles {
			fmt.Fprintf(&b, "- %s\n", a.Title)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
