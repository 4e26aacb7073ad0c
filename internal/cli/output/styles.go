package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Styles groups the lipgloss styles used by commands.
type Styles struct {
	Header1       lipgloss.Style
	Header2       lipgloss.Style
	Muted         lipgloss.Style
	Bold          lipgloss.Style
	Success       lipgloss.Style
	Warning       lipgloss.Style
	Error         lipgloss.Style
	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
}

// DefaultStyles returns the terminal styles.
func DefaultStyles() Styles {
	return Styles{
		Header1:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Underline(true),
		Header2:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Muted:         lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Bold:          lipgloss.NewStyle().Bold(true),
		Success:       lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:       lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:         lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		StatusSuccess: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		StatusFailed:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{s, s, s, s, s, s, s, s, s}
}

var titleCaser = cases.Title(language.English)

// Title capitalizes each word of s.
func Title(s string) string {
	return titleCaser.String(s)
}

// FormatHeader renders a section header for the given mode.
func FormatHeader(mode Mode, styles Styles, text string) string {
	if mode == ModeMarkdown {
		return "## " + text
	}
	return styles.Header2.Render(text)
}

// FormatKeyValue renders a key/value line for the given mode.
func FormatKeyValue(mode Mode, styles Styles, key, value string) string {
	if mode == ModeMarkdown {
		return fmt.Sprintf("- **%s:** %s", key, value)
	}
	return fmt.Sprintf("  %s %s", styles.Bold.Render(key+":"), value)
}

// FormatCodeBlock renders a block of code for the given mode.
func FormatCodeBlock(mode Mode, styles Styles, code string) string {
	code = strings.TrimRight(code, "\n")
	if mode == ModeMarkdown {
		return "```\n" + code + "\n```"
	}
	lines := strings.Split(code, "\n")
	for i, l := range lines {
		lines[i] = "    " + styles.Muted.Render(l)
	}
	return strings.Join(lines, "\n")
}
