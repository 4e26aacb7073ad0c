package main

import (
	"fmt"
	"strings"
)

// generatedHeader marks generated files so they are not edited by hand.
const generatedHeader = "<!-- Code generated by gendocs. DO NOT EDIT. -->"

// MarkdownWriter accumulates a markdown document.
type MarkdownWriter struct {
	b strings.Builder
}

// NewMarkdownWriter returns an empty writer.
func NewMarkdownWriter() *MarkdownWriter { return &MarkdownWriter{} }

// Frontmatter writes a YAML frontmatter block.
func (w *MarkdownWriter) Frontmatter(title, description string) {
	fmt.Fprintf(&w.b, "---\ntitle: %q\ndescription: %q\n---\n\n", title, description)
}

// GeneratedMarker writes the generated-file marker.
func (w *MarkdownWriter) GeneratedMarker() {
	w.b.WriteString(generatedHeader + "\n\n")
}

// Header writes a header of the given level.
func (w *MarkdownWriter) Header(level int, text string) {
	fmt.Fprintf(&w.b, "%s %s\n\n", strings.Repeat("#", level), text)
}

// Paragraph writes a paragraph.
func (w *MarkdownWriter) Paragraph(text string) {
	w.b.WriteString(strings.TrimSpace(text) + "\n\n")
}

// Text writes text as is.
func (w *MarkdownWriter) Text(text string) {
	w.b.WriteString(text)
}

// CodeBlock writes a fenced code block.
func (w *MarkdownWriter) CodeBlock(lang, code string) {
	fmt.Fprintf(&w.b, "```%s\n%s\n```\n\n", lang, strings.TrimRight(code, "\n"))
}

// BulletList writes an unordered list.
func (w *MarkdownWriter) BulletList(items []string) {
	for _, item := range items {
		w.b.WriteString("- " + item + "\n")
	}
	w.b.WriteString("\n")
}

// Table writes a table. Pipes in cells are escaped.
func (w *MarkdownWriter) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	row := func(cells []string) {
		escaped := make([]string, len(cells))
		for i, c := range cells {
			escaped[i] = strings.ReplaceAll(c, "|", `\|`)
		}
		w.b.WriteString("| " + strings.Join(escaped, " | ") + " |\n")
	}
	row(headers)
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	w.b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, r := range rows {
		row(r)
	}
	w.b.WriteString("\n")
}

// String returns the document.
func (w *MarkdownWriter) String() string { return w.b.String() }

// Bytes returns the document.
func (w *MarkdownWriter) Bytes() []byte { return []byte(w.b.String()) }

// InlineCode wraps s in backticks.
func InlineCode(s string) string { return "`" + s + "`" }

// cleanDescription collapses whitespace and drops a trailing period.
func cleanDescription(s string) string {
	return strings.TrimSuffix(strings.Join(strings.Fields(s), " "), ".")
}
