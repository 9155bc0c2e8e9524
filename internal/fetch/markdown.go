package fetch

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// ToMarkdown converts an HTML fragment or page to Markdown. Headings survive as
// "#" prefixes, which keeps competitor excerpts and ingested exemplars countable.
func ToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	out, err := converter.ConvertString(html)
	if err != nil {
		return "", &Error{Message: "markdown conversion failed", Cause: err}
	}
	return strings.TrimSpace(out), nil
}
