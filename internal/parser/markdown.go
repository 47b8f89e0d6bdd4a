// Package parser converts raw text into pipeline values: triples from model
// output, chunks from documents, and bodies from Markdown files.
package parser

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const fence = "---"

var atxHeading = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// MarkdownDoc is a Markdown file split into front matter and body.
type MarkdownDoc struct {
	Frontmatter map[string]any
	// Title is the front matter title or name, else the first h1.
	Title string
	Body  string
}

// ParseMarkdown separates YAML front matter from the body. Invalid YAML is
// ignored and leaves the front matter empty; the body is still stripped.
func ParseMarkdown(content string) *MarkdownDoc {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	raw, body, ok := splitFrontMatter(content)

	fm := map[string]any{}
	if ok {
		if err := yaml.Unmarshal([]byte(raw), &fm); err != nil || fm == nil {
			fm = map[string]any{}
		}
	}
	return &MarkdownDoc{Frontmatter: fm, Title: titleOf(fm, body), Body: body}
}

// splitFrontMatter returns the YAML between a leading "---" line and the
// next "---" line, and the text after it.
func splitFrontMatter(content string) (raw, body string, ok bool) {
	rest, found := strings.CutPrefix(content, fence+"\n")
	if !found {
		return "", content, false
	}
	raw, body, found = strings.Cut(rest, "\n"+fence)
	if !found {
		return "", content, false
	}
	// drop the remainder of the closing fence line
	if _, after, nl := strings.Cut(body, "\n"); nl {
		body = after
	} else {
		body = ""
	}
	return raw, body, true
}

func titleOf(fm map[string]any, body string) string {
	for _, key := range []string{"title", "name"} {
		if s, ok := fm[key].(string); ok && s != "" {
			return s
		}
	}
	if m := atxHeading.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
