package structure

import (
	"strings"
)

// Section is one top-level unit of an outline or document. The lead section has an
// empty Heading and holds everything before the first "## " line.
type Section struct {
	Heading string
	Body    string
}

// IsLead reports whether s is the lead block.
func (s Section) IsLead() bool { return s.Heading == "" }

// Text renders the section back to Markdown.
func (s Section) Text() string {
	if s.IsLead() {
		return strings.TrimSpace(s.Body)
	}
	body := strings.TrimSpace(s.Body)
	if body == "" {
		return "## " + s.Heading
	}
	return "## " + s.Heading + "\n\n" + body
}

// Split divides text into a lead section followed by one section per "## " heading.
// The lead is always present, possibly with an empty body.
func Split(text string) []Section {
	sections := []Section{{}}
	var body []string
	flush := func() {
		sections[len(sections)-1].Body = strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		if h, ok := h2(line); ok {
			flush()
			sections = append(sections, Section{Heading: h})
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}

// Join renders sections back to one document.
func Join(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if t := s.Text(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Headings returns the "## " headings of text in order.
func Headings(text string) []string {
	var out []string
	for _, s := range Split(text)[1:] {
		out = append(out, s.Heading)
	}
	return out
}

// Title returns the "# " title line of text without its marker, or "".
func Title(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

func h2(line string) (string, bool) {
	trimmed := strings.TrimRight(line, " \t\r")
	if !strings.HasPrefix(trimmed, "## ") {
		return "", false
	}
	return strings.TrimSpace(trimmed[3:]), true
}
