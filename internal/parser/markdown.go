// Package parser provides markdown structure extraction and semantic
// chunking for the ingestion pipeline.
package parser

import (
	"bufio"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Doc is a parsed document: optional YAML frontmatter, a title and the
// content split into heading-scoped sections.
type Doc struct {
	Frontmatter map[string]any
	Title       string
	Content     string
	Sections    []Section
}

// Section is a heading plus the content beneath it.
type Section struct {
	Level   int
	Heading string
	Path    string // breadcrumb like "# Guide > ## Setup"
	Content string
}

var (
	h1Regex      = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	headingRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
)

// Parse parses markdown content. Plain text without headings parses to a
// single untitled document with no sections, so every pipeline source can
// be routed through here.
func Parse(content string) *Doc {
	doc := &Doc{Frontmatter: map[string]any{}}

	remaining := content
	if strings.HasPrefix(content, "---\n") {
		if end := strings.Index(content[4:], "\n---"); end > 0 {
			fm := content[4 : 4+end]
			remaining = strings.TrimPrefix(content[4+end+4:], "\n")
			if err := yaml.Unmarshal([]byte(fm), &doc.Frontmatter); err != nil {
				// Malformed frontmatter is treated as absent.
				doc.Frontmatter = map[string]any{}
			}
		}
	}

	doc.Content = remaining
	doc.Title = extractTitle(doc.Frontmatter, remaining)
	doc.Sections = parseSections(remaining)
	return doc
}

// Tags returns the frontmatter tag list, checking "tags" then "labels".
func (d *Doc) Tags() []string {
	for _, key := range []string{"tags", "labels"} {
		if tags := stringSlice(d.Frontmatter[key]); tags != nil {
			return tags
		}
	}
	return nil
}

func extractTitle(fm map[string]any, content string) string {
	if title, ok := fm["title"].(string); ok && title != "" {
		return title
	}
	if m := h1Regex.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func parseSections(content string) []Section {
	var sections []Section
	var path []string
	var levels []int

	var current *Section
	var body strings.Builder

	flush := func() {
		if current != nil {
			current.Content = strings.TrimSpace(body.String())
			sections = append(sections, *current)
			body.Reset()
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		m := headingRegex.FindStringSubmatch(line)
		if m == nil {
			if current != nil {
				body.WriteString(line)
				body.WriteString("\n")
			}
			continue
		}

		flush()
		level := len(m[1])
		heading := strings.TrimSpace(m[2])
		for len(levels) > 0 && levels[len(levels)-1] >= level {
			path = path[:len(path)-1]
			levels = levels[:len(levels)-1]
		}
		path = append(path, m[1]+" "+heading)
		levels = append(levels, level)
		current = &Section{
			Level:   level,
			Heading: heading,
			Path:    strings.Join(path, " > "),
		}
	}
	flush()

	return sections
}

func stringSlice(v any) []string {
	switch v := v.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []string:
		return v
	}
	return nil
}
